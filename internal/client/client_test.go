package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasks-api/internal/handler"
	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/repo"
	"github.com/BuzzLyutic/tasks-api/internal/service"
)

func setupServer(t *testing.T) *Client {
	t.Helper()
	c, _ := setupServerWithHandler(t)
	return c
}

func setupServerWithHandler(t *testing.T) (*Client, *handler.TaskHandler) {
	t.Helper()
	h := handler.NewTaskHandler(service.NewTaskService(repo.NewMemoryRepo(), nil), zap.NewNop())
	srv := httptest.NewServer(handler.NewRouter(h))
	t.Cleanup(func() {
		h.CloseStreams()
		srv.Close()
	})
	return New(srv.URL + "/"), h
}

func waitClosed(t *testing.T, snapshots <-chan []model.Task) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-snapshots:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClient_CRUD(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	id, err := c.Create(ctx, model.NewTask{Title: "Buy milk", Description: model.StringPtr("2 liters")})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", task.Title)
	require.NotNil(t, task.Description)
	assert.Equal(t, "2 liters", *task.Description)
	assert.False(t, task.Completed)

	require.NoError(t, c.Update(ctx, id, model.TaskPatch{
		Completed:   model.SetTo(true),
		Description: model.Cleared[string](),
	}))

	task, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Nil(t, task.Description)
	assert.Equal(t, "Buy milk", task.Title)

	tasks, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, c.Delete(ctx, id))

	tasks, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestClient_Errors(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = c.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Create(ctx, model.NewTask{Title: "   "})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_Watch(t *testing.T) {
	c := setupServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.Watch(ctx)
	require.NoError(t, err)
	snapshots := stream.Snapshots()

	first := <-snapshots
	assert.Empty(t, first)

	_, err = c.Create(ctx, model.NewTask{Title: "Walk dog"})
	require.NoError(t, err)

	var got []model.Task
	require.Eventually(t, func() bool {
		select {
		case got = <-snapshots:
			return len(got) == 1
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Walk dog", got[0].Title)

	cancel()
	waitClosed(t, snapshots)
	assert.NoError(t, stream.Err(), "cancellation is not a stream failure")
}

func TestClient_WatchServerClosesStream(t *testing.T) {
	c, h := setupServerWithHandler(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := c.Watch(ctx)
	require.NoError(t, err)
	<-stream.Snapshots()

	h.CloseStreams()

	waitClosed(t, stream.Snapshots())
	assert.ErrorIs(t, stream.Err(), ErrStreamClosed)
}

func TestClient_WatchMalformedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: tasks\ndata: {not json\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := New(srv.URL).Watch(ctx)
	require.NoError(t, err)

	waitClosed(t, stream.Snapshots())
	require.Error(t, stream.Err())
	assert.Contains(t, stream.Err().Error(), "decode event")
	assert.NotErrorIs(t, stream.Err(), ErrStreamClosed)
}
