package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/tasks-api/internal/live"
	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/repo"
)

// MockTaskStore - мок хранилища
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) Insert(ctx context.Context, in model.NewTask) (model.Task, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskStore) GetByID(ctx context.Context, id string) (model.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskStore) PatchByID(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	args := m.Called(ctx, id, patch)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskStore) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskStore) ListAllOrderedByCreation(ctx context.Context) ([]model.Task, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Task), args.Error(1)
}

// recordingNotifier считает уведомления
type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) Notify(context.Context) { n.calls++ }

func TestTaskService_Create(t *testing.T) {
	tests := []struct {
		name        string
		in          model.NewTask
		setupMock   func(*MockTaskStore)
		wantID      string
		wantErr     bool
		wantNotices int
	}{
		{
			name: "successful creation",
			in:   model.NewTask{Title: "Test Task", Description: model.StringPtr("notes")},
			setupMock: func(m *MockTaskStore) {
				m.On("Insert", mock.Anything, mock.MatchedBy(func(in model.NewTask) bool {
					return in.Title == "Test Task" && in.Description != nil && *in.Description == "notes"
				})).Return(model.Task{ID: "id-1", Title: "Test Task"}, nil)
			},
			wantID:      "id-1",
			wantNotices: 1,
		},
		{
			name: "empty description stored as absent",
			in:   model.NewTask{Title: "Test Task", Description: model.StringPtr("")},
			setupMock: func(m *MockTaskStore) {
				m.On("Insert", mock.Anything, model.NewTask{Title: "Test Task"}).
					Return(model.Task{ID: "id-2", Title: "Test Task"}, nil)
			},
			wantID:      "id-2",
			wantNotices: 1,
		},
		{
			name: "blank title passes through",
			in:   model.NewTask{Title: "   "},
			setupMock: func(m *MockTaskStore) {
				m.On("Insert", mock.Anything, model.NewTask{Title: "   "}).
					Return(model.Task{ID: "id-3", Title: "   "}, nil)
			},
			wantID:      "id-3",
			wantNotices: 1,
		},
		{
			name: "store failure",
			in:   model.NewTask{Title: "Test Task"},
			setupMock: func(m *MockTaskStore) {
				m.On("Insert", mock.Anything, mock.Anything).Return(model.Task{}, errors.New("db down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockTaskStore)
			tt.setupMock(store)
			notifier := &recordingNotifier{}

			svc := NewTaskService(store, nil, WithNotifier(notifier))
			id, err := svc.Create(context.Background(), tt.in)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			assert.Equal(t, tt.wantNotices, notifier.calls)
			store.AssertExpectations(t)
		})
	}
}

func TestTaskService_Update(t *testing.T) {
	tests := []struct {
		name        string
		patch       model.TaskPatch
		setupMock   func(*MockTaskStore)
		wantErr     error
		wantNotices int
	}{
		{
			name:  "title only",
			patch: model.TaskPatch{Title: model.SetTo("Updated")},
			setupMock: func(m *MockTaskStore) {
				m.On("PatchByID", mock.Anything, "id-1", model.TaskPatch{Title: model.SetTo("Updated")}).
					Return(model.Task{ID: "id-1", Title: "Updated"}, nil)
			},
			wantNotices: 1,
		},
		{
			name:  "empty description becomes clear",
			patch: model.TaskPatch{Description: model.SetTo("")},
			setupMock: func(m *MockTaskStore) {
				m.On("PatchByID", mock.Anything, "id-1", model.TaskPatch{Description: model.Cleared[string]()}).
					Return(model.Task{ID: "id-1"}, nil)
			},
			wantNotices: 1,
		},
		{
			name:  "not found",
			patch: model.TaskPatch{Completed: model.SetTo(true)},
			setupMock: func(m *MockTaskStore) {
				m.On("PatchByID", mock.Anything, "id-1", mock.Anything).
					Return(model.Task{}, repo.ErrorNotFound)
			},
			wantErr: repo.ErrorNotFound,
		},
		{
			name:      "clearing title rejected",
			patch:     model.TaskPatch{Title: model.Cleared[string]()},
			setupMock: func(m *MockTaskStore) {},
			wantErr:   ErrValidation,
		},
		{
			name:      "clearing completed rejected",
			patch:     model.TaskPatch{Completed: model.Cleared[bool]()},
			setupMock: func(m *MockTaskStore) {},
			wantErr:   ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockTaskStore)
			tt.setupMock(store)
			notifier := &recordingNotifier{}

			svc := NewTaskService(store, nil, WithNotifier(notifier))
			err := svc.Update(context.Background(), "id-1", tt.patch)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantNotices, notifier.calls)
			store.AssertExpectations(t)
		})
	}
}

func TestTaskService_Delete(t *testing.T) {
	store := new(MockTaskStore)
	store.On("DeleteByID", mock.Anything, "id-1").Return(nil).Once()
	store.On("DeleteByID", mock.Anything, "id-1").Return(repo.ErrorNotFound).Once()
	notifier := &recordingNotifier{}

	svc := NewTaskService(store, nil, WithNotifier(notifier))
	require.NoError(t, svc.Delete(context.Background(), "id-1"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "id-1"), repo.ErrorNotFound)

	assert.Equal(t, 1, notifier.calls, "failed delete must not notify")
	store.AssertExpectations(t)
}

func TestTaskService_List(t *testing.T) {
	store := new(MockTaskStore)
	store.On("ListAllOrderedByCreation", mock.Anything).Return([]model.Task{{ID: "b"}, {ID: "a"}}, nil)

	svc := NewTaskService(store, nil)
	tasks, err := svc.List(context.Background())

	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	store.AssertExpectations(t)
}

func TestTaskService_Watch(t *testing.T) {
	broker := live.NewBroker()
	svc := NewTaskService(repo.NewMemoryRepo(), broker)
	ctx, cancel := context.WithCancel(context.Background())

	snapshots := svc.Watch(ctx)

	first := receive(t, snapshots)
	assert.Empty(t, first, "initial snapshot of empty store")

	id, err := svc.Create(context.Background(), model.NewTask{Title: "Buy milk"})
	require.NoError(t, err)

	second := receive(t, snapshots)
	require.Len(t, second, 1)
	assert.Equal(t, id, second[0].ID)

	require.NoError(t, svc.Update(context.Background(), id, model.TaskPatch{Completed: model.SetTo(true)}))
	third := receive(t, snapshots)
	require.Len(t, third, 1)
	assert.True(t, third[0].Completed)

	cancel()
	closed := false
	deadline := time.After(time.Second)
	for !closed {
		select {
		case _, ok := <-snapshots:
			closed = !ok
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}

	assert.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan []model.Task) []model.Task {
	t.Helper()
	select {
	case tasks, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return tasks
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return nil
	}
}
