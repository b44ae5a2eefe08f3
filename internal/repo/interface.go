package repo

import (
	"context"

	"github.com/BuzzLyutic/tasks-api/internal/model"
)

// TaskStore определяет интерфейс хранилища задач
type TaskStore interface {
	Insert(ctx context.Context, in model.NewTask) (model.Task, error)
	GetByID(ctx context.Context, id string) (model.Task, error)
	PatchByID(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	DeleteByID(ctx context.Context, id string) error
	ListAllOrderedByCreation(ctx context.Context) ([]model.Task, error)
}
