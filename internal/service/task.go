package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasks-api/internal/live"
	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

type TaskService struct {
	store    repo.TaskStore
	broker   *live.Broker
	notifier live.Notifier
	logger   *zap.Logger
}

type Option func(*TaskService)

// WithNotifier routes change announcements somewhere other than the local
// broker, e.g. a Redis publisher whose relay feeds the broker back.
func WithNotifier(n live.Notifier) Option {
	return func(s *TaskService) {
		s.notifier = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *TaskService) {
		s.logger = logger
	}
}

func NewTaskService(store repo.TaskStore, broker *live.Broker, opts ...Option) *TaskService {
	if broker == nil {
		broker = live.NewBroker()
	}
	s := &TaskService{
		store:    store,
		broker:   broker,
		notifier: broker,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List возвращает все задачи, новые первыми
func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	return s.store.ListAllOrderedByCreation(ctx)
}

func (s *TaskService) Get(ctx context.Context, id string) (model.Task, error) {
	return s.store.GetByID(ctx, id)
}

// Create не проверяет заголовок на пустоту: это делает вызывающая сторона.
func (s *TaskService) Create(ctx context.Context, in model.NewTask) (string, error) {
	if in.Description != nil && *in.Description == "" {
		in.Description = nil
	}

	t, err := s.store.Insert(ctx, in)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}

	s.notifier.Notify(ctx)
	return t.ID, nil
}

func (s *TaskService) Update(ctx context.Context, id string, patch model.TaskPatch) error {
	if err := s.validatePatch(patch); err != nil {
		return err
	}
	// Пустое описание хранится как отсутствующее
	if v, ok := patch.Description.Get(); ok && v == "" {
		patch.Description = model.Cleared[string]()
	}

	if _, err := s.store.PatchByID(ctx, id, patch); err != nil {
		return fmt.Errorf("patch task %s: %w", id, err)
	}

	s.notifier.Notify(ctx)
	return nil
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.notifier.Notify(ctx)
	return nil
}

// Watch sends a full snapshot immediately and after every committed write.
// The channel is closed when ctx is done, which also unregisters the watcher.
func (s *TaskService) Watch(ctx context.Context) <-chan []model.Task {
	signals, cancel := s.broker.Subscribe()
	out := make(chan []model.Task)

	go func() {
		defer close(out)
		defer cancel()

		for {
			tasks, err := s.store.ListAllOrderedByCreation(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("watch: list tasks", zap.Error(err))
			} else {
				select {
				case out <- tasks:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-signals:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Title и Completed обязательны в записи, очистить их нельзя.
func (s *TaskService) validatePatch(p model.TaskPatch) error {
	if p.Title.IsClear() {
		return fmt.Errorf("%w: title cannot be cleared", ErrValidation)
	}
	if p.Completed.IsClear() {
		return fmt.Errorf("%w: completed cannot be cleared", ErrValidation)
	}
	return nil
}
