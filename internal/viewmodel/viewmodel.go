// Package viewmodel holds client-side state for a task list screen: the live
// snapshot, the create form, inline editing and the last user-facing notice.
// It depends only on a Backend, so the same model drives the CLI over HTTP
// and tests over an in-process service.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/service"
)

const (
	NoticeBlankTitle   = "Please enter a task title"
	NoticeCreateFailed = "Failed to create task"
	NoticeUpdateFailed = "Failed to update task"
	NoticeDeleteFailed = "Failed to delete task"

	DeletePrompt = "Are you sure you want to delete this task?"
)

var (
	ErrBlankTitle = errors.New("blank title")
	ErrNotEditing = errors.New("no task is being edited")
	ErrFeedClosed = errors.New("stream closed")
)

// Feed delivers snapshots until Snapshots is closed; Err then tells why.
type Feed interface {
	Snapshots() <-chan []model.Task
	Err() error
}

// Backend is what the view model needs from the task service.
type Backend interface {
	Create(ctx context.Context, in model.NewTask) (string, error)
	Update(ctx context.Context, id string, patch model.TaskPatch) error
	Delete(ctx context.Context, id string) error
	Watch(ctx context.Context) (Feed, error)
}

type serviceFeed <-chan []model.Task

func (f serviceFeed) Snapshots() <-chan []model.Task { return f }
func (f serviceFeed) Err() error                     { return nil }

type serviceBackend struct {
	*service.TaskService
}

func (b serviceBackend) Watch(ctx context.Context) (Feed, error) {
	return serviceFeed(b.TaskService.Watch(ctx)), nil
}

// FromService adapts an in-process service to Backend.
func FromService(s *service.TaskService) Backend {
	return serviceBackend{s}
}

type State int

const (
	Loading State = iota
	Empty
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	}
	return "unknown"
}

type Option func(*ViewModel)

// WithConfirm sets the question asked before a delete. Without it deletes
// are not confirmed.
func WithConfirm(fn func(prompt string) bool) Option {
	return func(vm *ViewModel) {
		vm.confirm = fn
	}
}

type ViewModel struct {
	backend Backend
	confirm func(prompt string) bool

	mu     sync.Mutex
	tasks  []model.Task
	loaded bool
	notice string

	draftTitle       string
	draftDescription string

	editingID       string
	editTitle       string
	editDescription string

	changes chan struct{}
}

func New(backend Backend, opts ...Option) *ViewModel {
	vm := &ViewModel{
		backend: backend,
		confirm: func(string) bool { return true },
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run applies snapshots from the backend until ctx is done or the feed ends.
// A feed that ends on its own yields ErrFeedClosed, wrapping its cause.
func (vm *ViewModel) Run(ctx context.Context) error {
	feed, err := vm.backend.Watch(ctx)
	if err != nil {
		return err
	}
	for tasks := range feed.Snapshots() {
		vm.apply(tasks)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := feed.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrFeedClosed, err)
	}
	return ErrFeedClosed
}

func (vm *ViewModel) apply(tasks []model.Task) {
	vm.mu.Lock()
	vm.tasks = tasks
	vm.loaded = true
	// Редактируемая задача удалена где-то еще
	if vm.editingID != "" && !containsID(tasks, vm.editingID) {
		vm.resetEditLocked()
	}
	vm.mu.Unlock()
	vm.changed()
}

// Changes signals after any state change. Signals coalesce.
func (vm *ViewModel) Changes() <-chan struct{} {
	return vm.changes
}

func (vm *ViewModel) changed() {
	select {
	case vm.changes <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	switch {
	case !vm.loaded:
		return Loading
	case len(vm.tasks) == 0:
		return Empty
	default:
		return Ready
	}
}

// Tasks returns the latest snapshot, newest first.
func (vm *ViewModel) Tasks() []model.Task {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]model.Task, len(vm.tasks))
	copy(out, vm.tasks)
	return out
}

func (vm *ViewModel) Notice() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.notice
}

func (vm *ViewModel) DismissNotice() {
	vm.setNotice("")
}

func (vm *ViewModel) setNotice(msg string) {
	vm.mu.Lock()
	vm.notice = msg
	vm.mu.Unlock()
	vm.changed()
}

func (vm *ViewModel) SetDraft(title, description string) {
	vm.mu.Lock()
	vm.draftTitle, vm.draftDescription = title, description
	vm.mu.Unlock()
}

func (vm *ViewModel) Draft() (title, description string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.draftTitle, vm.draftDescription
}

// Submit creates a task from the draft. The draft is kept on failure.
func (vm *ViewModel) Submit(ctx context.Context) (string, error) {
	title, description := vm.Draft()
	title = strings.TrimSpace(title)
	if title == "" {
		vm.setNotice(NoticeBlankTitle)
		return "", ErrBlankTitle
	}

	in := model.NewTask{Title: title}
	if d := strings.TrimSpace(description); d != "" {
		in.Description = model.StringPtr(d)
	}

	id, err := vm.backend.Create(ctx, in)
	if err != nil {
		vm.setNotice(NoticeCreateFailed)
		return "", err
	}

	vm.mu.Lock()
	vm.draftTitle, vm.draftDescription = "", ""
	vm.mu.Unlock()
	vm.changed()
	return id, nil
}

// Toggle flips the completed flag as seen in task.
func (vm *ViewModel) Toggle(ctx context.Context, task model.Task) error {
	err := vm.backend.Update(ctx, task.ID, model.TaskPatch{Completed: model.SetTo(!task.Completed)})
	if err != nil {
		vm.setNotice(NoticeUpdateFailed)
	}
	return err
}

func (vm *ViewModel) StartEdit(task model.Task) {
	vm.mu.Lock()
	vm.editingID = task.ID
	vm.editTitle = task.Title
	vm.editDescription = ""
	if task.Description != nil {
		vm.editDescription = *task.Description
	}
	vm.mu.Unlock()
	vm.changed()
}

func (vm *ViewModel) SetEdit(title, description string) {
	vm.mu.Lock()
	vm.editTitle, vm.editDescription = title, description
	vm.mu.Unlock()
}

// Editing reports the task under edit and its draft fields.
func (vm *ViewModel) Editing() (id, title, description string, ok bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.editingID, vm.editTitle, vm.editDescription, vm.editingID != ""
}

func (vm *ViewModel) CancelEdit() {
	vm.mu.Lock()
	vm.resetEditLocked()
	vm.mu.Unlock()
	vm.changed()
}

func (vm *ViewModel) resetEditLocked() {
	vm.editingID, vm.editTitle, vm.editDescription = "", "", ""
}

// SaveEdit sends the edit drafts. An empty description clears the stored one.
func (vm *ViewModel) SaveEdit(ctx context.Context) error {
	id, title, description, ok := vm.Editing()
	if !ok {
		return ErrNotEditing
	}
	title = strings.TrimSpace(title)
	if title == "" {
		vm.setNotice(NoticeBlankTitle)
		return ErrBlankTitle
	}

	patch := model.TaskPatch{Title: model.SetTo(title)}
	if d := strings.TrimSpace(description); d != "" {
		patch.Description = model.SetTo(d)
	} else {
		patch.Description = model.Cleared[string]()
	}

	if err := vm.backend.Update(ctx, id, patch); err != nil {
		vm.setNotice(NoticeUpdateFailed)
		return err
	}

	vm.mu.Lock()
	if vm.editingID == id {
		vm.resetEditLocked()
	}
	vm.mu.Unlock()
	vm.changed()
	return nil
}

// Delete asks for confirmation first. It reports whether a delete was sent
// and succeeded.
func (vm *ViewModel) Delete(ctx context.Context, id string) (bool, error) {
	if !vm.confirm(DeletePrompt) {
		return false, nil
	}
	if err := vm.backend.Delete(ctx, id); err != nil {
		vm.setNotice(NoticeDeleteFailed)
		return false, err
	}
	return true, nil
}

func containsID(tasks []model.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
