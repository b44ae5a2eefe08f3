package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasks-api/internal/model"
	"github.com/BuzzLyutic/tasks-api/internal/repo"
	"github.com/BuzzLyutic/tasks-api/internal/service"
	"github.com/BuzzLyutic/tasks-api/pkg/respond"
)

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
		closing: make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. It is meant for http.Server.RegisterOnShutdown.
func (h *TaskHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

type createResponse struct {
	ID string `json:"id"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {

	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req model.NewTask
	if err := decodeValidated(r.Body, createTaskSchema, &req); err != nil {
		h.logger.Debug("rejected create body", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respond.Error(w, r, http.StatusBadRequest, "title must not be blank")
		return
	}

	id, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%s", id))
	respond.JSON(w, r, http.StatusCreated, createResponse{ID: id})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var patch model.TaskPatch
	if err := decodeValidated(r.Body, updateTaskSchema, &patch); err != nil {
		h.logger.Debug("rejected update body", zap.String("id", id), zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if title, ok := patch.Title.Get(); ok && strings.TrimSpace(title) == "" {
		respond.Error(w, r, http.StatusBadRequest, "title must not be blank")
		return
	}

	if err := h.service.Update(r.Context(), id, patch); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream отдает полный список задач как server-sent events: сразу и после каждой записи
func (h *TaskHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Поток живет дольше, чем WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})

	respond.StartStream(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("stream unsupported", zap.Error(err))
		return
	}

	h.logger.Debug("stream opened", zap.String("remote", r.RemoteAddr))
	defer h.logger.Debug("stream closed", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	for tasks := range h.service.Watch(ctx) {
		if err := respond.Event(w, "tasks", tasks); err != nil {
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, "validation error")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
