package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// Routes returns the chi router with task routes.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Patch("/{id}", h.Update)
	r.Post("/{id}/advance", h.Advance)
	r.Post("/{id}/terminate", h.Terminate)

	return r
}

// List returns the caller's tasks, optionally filtered by ?status=.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TaskHandler.List")
	defer span.End()
	r = r.WithContext(ctx)

	var status *model.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := model.ParseStatus(raw)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		status = &s
	}

	tasks, err := h.tasks.ListTasks(ctx, ActorFrom(ctx), status)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	views, err := h.tasks.Views(ctx, tasks...)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	span.SetAttributes(attribute.Int("task.count", len(views)))
	h.logger.InfoContext(ctx, "tasks listed", slog.Int("count", len(views)))
	respondJSON(w, http.StatusOK, views)
}

// Create adds a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Create")
	defer span.End()
	r = r.WithContext(ctx)

	var req model.CreateTaskRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	task, err := h.tasks.CreateTask(ctx, ActorFrom(ctx), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	h.respondTask(w, r, http.StatusCreated, task)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	task, err := h.tasks.GetTask(ctx, ActorFrom(ctx), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.respondTask(w, r, http.StatusOK, task)
}

// Update reschedules or reassigns a task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req model.UpdateTaskRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	task, err := h.tasks.UpdateTask(ctx, ActorFrom(ctx), id, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.respondTask(w, r, http.StatusOK, task)
}

// Advance moves a task to its next status. The body may be empty unless
// the task is being completed.
func (h *TaskHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Advance",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req model.AdvanceTaskRequest
	if !decodeOptional(w, r, h.logger, &req) {
		return
	}

	task, err := h.tasks.AdvanceTask(ctx, ActorFrom(ctx), id, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("task.status", string(task.Status)))
	h.respondTask(w, r, http.StatusOK, task)
}

// Terminate stops a task.
func (h *TaskHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := tracer.Start(r.Context(), "TaskHandler.Terminate",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()
	r = r.WithContext(ctx)

	task, err := h.tasks.TerminateTask(ctx, ActorFrom(ctx), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.respondTask(w, r, http.StatusOK, task)
}

func (h *TaskHandler) respondTask(w http.ResponseWriter, r *http.Request, status int, task *model.Task) {
	views, err := h.tasks.Views(r.Context(), task)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, status, views[0])
}
