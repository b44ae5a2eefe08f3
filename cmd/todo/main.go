package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/tasks-api/internal/client"
	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/viewmodel"
)

const defaultServer = "http://localhost:8080"

// Backend is the client surface the commands need (allows fakes in tests)
type Backend interface {
	viewmodel.Backend
	List(ctx context.Context) ([]model.Task, error)
	Get(ctx context.Context, id string) (model.Task, error)
}

// BackendFactory builds a Backend for the given server URL
type BackendFactory func(server string) Backend

type clientBackend struct {
	*client.Client
}

func (b clientBackend) Watch(ctx context.Context) (viewmodel.Feed, error) {
	stream, err := b.Client.Watch(ctx)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func defaultBackend(server string) Backend {
	return clientBackend{client.New(server)}
}

type cliOptions struct {
	newBackend BackendFactory
	stdin      io.Reader
}

func newRootCmd(opts cliOptions) *cobra.Command {
	if opts.newBackend == nil {
		opts.newBackend = defaultBackend
	}
	if opts.stdin == nil {
		opts.stdin = os.Stdin
	}

	var server string
	backend := func() Backend { return opts.newBackend(server) }

	root := &cobra.Command{
		Use:           "todo",
		Short:         "todo - manage tasks on a tasks-api server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", envOr("TASKS_URL", defaultServer), "Tasks API base URL")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := backend().List(cmd.Context())
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	var description string
	addCmd := &cobra.Command{
		Use:   "add TITLE...",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm := viewmodel.New(backend())
			vm.SetDraft(strings.Join(args, " "), description)
			id, err := vm.Submit(cmd.Context())
			if err != nil {
				return withNotice(vm, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&description, "description", "d", "", "Task description")

	doneCmd := setCompletedCmd("done", "Mark a task completed", true, backend)
	undoCmd := setCompletedCmd("undo", "Mark a task not completed", false, backend)

	toggleCmd := &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip a task's completed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := backend()
			task, err := b.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			vm := viewmodel.New(b)
			if err := vm.Toggle(cmd.Context(), task); err != nil {
				return withNotice(vm, err)
			}
			return nil
		},
	}

	var (
		editTitle        string
		editDescription  string
		clearDescription bool
	)
	editCmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := backend()
			task, err := b.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			vm := viewmodel.New(b)
			vm.StartEdit(task)
			_, title, desc, _ := vm.Editing()
			if cmd.Flags().Changed("title") {
				title = editTitle
			}
			if cmd.Flags().Changed("description") {
				desc = editDescription
			}
			if clearDescription {
				desc = ""
			}
			vm.SetEdit(title, desc)

			if err := vm.SaveEdit(cmd.Context()); err != nil {
				return withNotice(vm, err)
			}
			return nil
		},
	}
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editDescription, "description", "", "New description")
	editCmd.Flags().BoolVar(&clearDescription, "clear-description", false, "Remove the description")
	editCmd.MarkFlagsMutuallyExclusive("description", "clear-description")

	var yes bool
	rmCmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := func(prompt string) bool {
				if yes {
					return true
				}
				return askYesNo(opts.stdin, cmd.OutOrStdout(), prompt)
			}
			vm := viewmodel.New(backend(), viewmodel.WithConfirm(confirm))
			deleted, err := vm.Delete(cmd.Context(), args[0])
			if err != nil {
				return withNotice(vm, err)
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			}
			return nil
		},
	}
	rmCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the task list every time it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), viewmodel.New(backend()), cmd.OutOrStdout())
		},
	}

	root.AddCommand(listCmd, addCmd, doneCmd, undoCmd, toggleCmd, editCmd, rmCmd, watchCmd)
	return root
}

func setCompletedCmd(use, short string, completed bool, backend func() Backend) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return backend().Update(cmd.Context(), args[0], model.TaskPatch{Completed: model.SetTo(completed)})
		},
	}
}

// runWatch печатает список при каждом изменении, пока не отменен ctx
func runWatch(ctx context.Context, vm *viewmodel.ViewModel, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- vm.Run(ctx) }()

	for {
		select {
		case <-vm.Changes():
			if vm.State() == viewmodel.Loading {
				continue
			}
			fmt.Fprintln(out, "---")
			printTasks(out, vm.Tasks())
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = viewmodel.ErrFeedClosed
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

func printTasks(out io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks yet. Create your first task above!")
		return
	}
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] %s  (%s)\n", mark, t.Title, t.ID)
		if t.Description != nil {
			fmt.Fprintf(out, "    %s\n", *t.Description)
		}
	}
}

func askYesNo(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func withNotice(vm *viewmodel.ViewModel, err error) error {
	if notice := vm.Notice(); notice != "" {
		return fmt.Errorf("%s: %w", notice, err)
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cliOptions{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
