package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/tasks-api/internal/model"
)

// MemoryRepo is an in-process TaskStore. It backs tests and STORE=memory.
type MemoryRepo struct {
	mu    sync.RWMutex
	tasks map[string]memoryRecord
	seq   int64
	now   func() time.Time
}

type memoryRecord struct {
	task model.Task
	seq  int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tasks: make(map[string]memoryRecord),
		now:   time.Now,
	}
}

// WithClock replaces the creation-time source.
func (r *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	r.now = now
	return r
}

func (r *MemoryRepo) Insert(_ context.Context, in model.NewTask) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := model.Task{
		ID:          uuid.NewString(),
		CreatedAt:   r.now().UTC(),
		Title:       in.Title,
		Description: copyString(in.Description),
		Completed:   false,
	}
	r.tasks[t.ID] = memoryRecord{task: t, seq: r.seq}
	return cloneTask(t), nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrorNotFound
	}
	return cloneTask(rec.task), nil
}

func (r *MemoryRepo) PatchByID(_ context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrorNotFound
	}

	if v, ok := patch.Title.Get(); ok {
		rec.task.Title = v
	}
	switch patch.Description.State {
	case model.Set:
		rec.task.Description = model.StringPtr(patch.Description.Value)
	case model.Clear:
		rec.task.Description = nil
	}
	if v, ok := patch.Completed.Get(); ok {
		rec.task.Completed = v
	}

	r.tasks[id] = rec
	return cloneTask(rec.task), nil
}

func (r *MemoryRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrorNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepo) ListAllOrderedByCreation(_ context.Context) ([]model.Task, error) {
	r.mu.RLock()
	records := make([]memoryRecord, 0, len(r.tasks))
	for _, rec := range r.tasks {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.After(b.task.CreatedAt)
		}
		return a.seq > b.seq
	})

	tasks := make([]model.Task, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, cloneTask(rec.task))
	}
	return tasks, nil
}

func cloneTask(t model.Task) model.Task {
	t.Description = copyString(t.Description)
	return t
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
