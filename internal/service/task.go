package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/repository"
	"github.com/hiroki-koketsu/task-assignment/internal/transition"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/task-assignment/internal/service")

// maxDependencyChain bounds the walk that looks for dependency cycles.
const maxDependencyChain = 256

// Transition outcomes reported to the recorder.
const (
	OutcomeOK        = "ok"
	OutcomeBlocked   = "blocked"
	OutcomeInvalid   = "invalid"
	OutcomeForbidden = "forbidden"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// TransitionRecorder observes status transition attempts.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, from, to model.Status, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(context.Context, model.Status, model.Status, string) {}

// TaskService orchestrates task use cases over the repositories.
type TaskService struct {
	tasks    repository.TaskRepository
	users    repository.UserRepository
	logger   *slog.Logger
	recorder TransitionRecorder
	now      func() time.Time
}

// NewTaskService creates a new TaskService. recorder may be nil.
func NewTaskService(tasks repository.TaskRepository, users repository.UserRepository, logger *slog.Logger, recorder TransitionRecorder) *TaskService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &TaskService{
		tasks:    tasks,
		users:    users,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// CreateTask stores a new not-started task on behalf of an admin.
func (s *TaskService) CreateTask(ctx context.Context, actor model.Actor, req model.CreateTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.CreateTask")
	defer span.End()

	if err := authorize(actor, CapCreateTask); err != nil {
		return nil, err
	}
	if req.CreatedBy != "" && req.CreatedBy != actor.ID {
		return nil, model.Forbidden("cannot create tasks on behalf of another admin")
	}
	if req.CreatedDate.IsZero() {
		req.CreatedDate = s.now().UTC()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	assignee := strings.TrimSpace(req.AssignedTo)
	if err := s.checkAssignee(ctx, actor, assignee); err != nil {
		return nil, err
	}

	depID := strings.TrimSpace(req.DependentTask)
	if depID != "" {
		if err := s.checkDependency(ctx, actor, depID); err != nil {
			return nil, err
		}
	}

	task, err := s.tasks.Create(ctx, &model.Task{
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		Status:        model.StatusNotStarted,
		CreatedDate:   req.CreatedDate,
		EndDate:       req.EndDate,
		AssignedTo:    assignee,
		CreatedBy:     actor.ID,
		DependentTask: depID,
		PerHourCost:   req.PerHourCost,
		TotalHours:    0,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	s.logger.InfoContext(ctx, "task created",
		slog.String("id", task.ID),
		slog.String("assigned_to", task.AssignedTo),
		slog.String("created_by", task.CreatedBy),
	)
	return task, nil
}

// ListTasks returns the tasks visible to the actor, optionally restricted
// to one status, in insertion order.
func (s *TaskService) ListTasks(ctx context.Context, actor model.Actor, status *model.Status) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.ListTasks")
	defer span.End()

	if err := authorize(actor, CapListTasks); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, model.Validationf("unknown status %q", *status)
	}

	filter := model.TaskFilter{Status: status}
	if actor.Role == model.RoleAdmin {
		filter.CreatedBy = actor.ID
	} else {
		filter.AssignedTo = actor.ID
	}

	tasks, err := s.tasks.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// GetTask returns one task the actor may see.
func (s *TaskService) GetTask(ctx context.Context, actor model.Actor, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.GetTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := authorize(actor, CapViewTask); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, task) {
		return nil, model.Forbidden("task %s is not visible to this user", id)
	}
	return task, nil
}

// AdvanceTask moves a task one step forward on behalf of its assignee.
// Completing a task requires the worked hours.
func (s *TaskService) AdvanceTask(ctx context.Context, actor model.Actor, id string, req model.AdvanceTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.AdvanceTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := authorize(actor, CapAdvanceTask); err != nil {
		s.recorder.RecordTransition(ctx, "", "", OutcomeForbidden)
		return nil, err
	}

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo != actor.ID {
		s.recorder.RecordTransition(ctx, task.Status, "", OutcomeForbidden)
		return nil, model.Forbidden("task %s is not assigned to this user", id)
	}

	var dep *transition.Dependency
	if task.DependentTask != "" {
		d, err := s.tasks.GetByID(ctx, task.DependentTask)
		if errors.Is(err, model.ErrTaskNotFound) {
			return nil, model.ErrDependencyNotFound
		}
		if err != nil {
			return nil, err
		}
		dep = &transition.Dependency{ID: d.ID, Name: d.Name, Status: d.Status}
	}

	next, err := transition.Next(task.Status, actor.Role, dep)
	if err != nil {
		s.recorder.RecordTransition(ctx, task.Status, "", outcomeOf(err))
		s.logger.InfoContext(ctx, "task transition refused",
			slog.String("id", id),
			slog.String("status", string(task.Status)),
			slog.Any("error", err),
		)
		return nil, err
	}

	patch := model.TaskPatch{Version: task.Version, Status: &next}
	if next == model.StatusCompleted {
		if req.ReportedHours == nil || !(*req.ReportedHours > 0) {
			s.recorder.RecordTransition(ctx, task.Status, next, OutcomeRejected)
			return nil, model.ErrHoursRequired
		}
		hours := *req.ReportedHours
		completedAt := s.now().UTC()
		patch.TotalHours = &hours
		patch.CompletionDate = &completedAt
	}

	updated, err := s.tasks.Update(ctx, id, patch)
	if err != nil {
		s.recorder.RecordTransition(ctx, task.Status, next, outcomeOf(err))
		return nil, fmt.Errorf("advance task: %w", err)
	}

	s.recorder.RecordTransition(ctx, task.Status, next, OutcomeOK)
	span.SetAttributes(attribute.String("task.status", string(next)))
	s.logger.InfoContext(ctx, "task advanced",
		slog.String("id", id),
		slog.String("from", string(task.Status)),
		slog.String("to", string(next)),
	)
	return updated, nil
}

// TerminateTask stops a task its admin created.
func (s *TaskService) TerminateTask(ctx context.Context, actor model.Actor, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.TerminateTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := authorize(actor, CapTerminateTask); err != nil {
		return nil, err
	}
	task, err := s.ownedTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	next, err := transition.Terminate(task.Status, actor.Role)
	if err != nil {
		s.recorder.RecordTransition(ctx, task.Status, "", outcomeOf(err))
		return nil, err
	}

	updated, err := s.tasks.Update(ctx, id, model.TaskPatch{Version: task.Version, Status: &next})
	if err != nil {
		s.recorder.RecordTransition(ctx, task.Status, next, outcomeOf(err))
		return nil, fmt.Errorf("terminate task: %w", err)
	}

	s.recorder.RecordTransition(ctx, task.Status, next, OutcomeOK)
	s.logger.InfoContext(ctx, "task terminated", slog.String("id", id))
	return updated, nil
}

// UpdateTask reschedules or reassigns an unfinished task its admin created.
func (s *TaskService) UpdateTask(ctx context.Context, actor model.Actor, id string, req model.UpdateTaskRequest) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskService.UpdateTask",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if err := authorize(actor, CapUpdateTask); err != nil {
		return nil, err
	}
	if req.Empty() {
		return nil, model.Validationf("nothing to update")
	}
	task, err := s.ownedTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, model.InvalidTransition(task.Status, "finished tasks cannot be changed")
	}

	patch := model.TaskPatch{Version: task.Version}
	if req.EndDate != nil {
		if req.EndDate.Before(task.CreatedDate) {
			return nil, model.ErrEndBeforeStart
		}
		end := *req.EndDate
		patch.EndDate = &end
	}
	if req.AssignedTo != nil {
		assignee := strings.TrimSpace(*req.AssignedTo)
		if assignee == "" {
			return nil, model.ErrAssigneeRequired
		}
		if err := s.checkAssignee(ctx, actor, assignee); err != nil {
			return nil, err
		}
		patch.AssignedTo = &assignee
	}

	updated, err := s.tasks.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.logger.InfoContext(ctx, "task updated", slog.String("id", id))
	return updated, nil
}

// Views resolves the display fields of tasks. References that no longer
// resolve keep only their ID.
func (s *TaskService) Views(ctx context.Context, tasks ...*model.Task) ([]*model.TaskView, error) {
	ctx, span := tracer.Start(ctx, "TaskService.Views")
	defer span.End()

	users := make(map[string]*model.User)
	deps := make(map[string]*model.Task)
	for _, t := range tasks {
		deps[t.ID] = t
	}

	lookupUser := func(id string) (*model.User, error) {
		if u, ok := users[id]; ok {
			return u, nil
		}
		u, err := s.users.GetByID(ctx, id)
		if errors.Is(err, model.ErrUserNotFound) {
			u, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		users[id] = u
		return u, nil
	}
	lookupTask := func(id string) (*model.Task, error) {
		if t, ok := deps[id]; ok {
			return t, nil
		}
		t, err := s.tasks.GetByID(ctx, id)
		if errors.Is(err, model.ErrTaskNotFound) {
			t, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		deps[id] = t
		return t, nil
	}

	views := make([]*model.TaskView, 0, len(tasks))
	for _, t := range tasks {
		assignee, err := lookupUser(t.AssignedTo)
		if err != nil {
			return nil, fmt.Errorf("resolve assignee: %w", err)
		}
		creator, err := lookupUser(t.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("resolve creator: %w", err)
		}
		var dep *model.Task
		if t.DependentTask != "" {
			if dep, err = lookupTask(t.DependentTask); err != nil {
				return nil, fmt.Errorf("resolve dependency: %w", err)
			}
		}
		views = append(views, model.NewTaskView(t, assignee, creator, dep))
	}
	return views, nil
}

func (s *TaskService) ownedTask(ctx context.Context, actor model.Actor, id string) (*model.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.CreatedBy != actor.ID {
		return nil, model.Forbidden("task %s was created by another admin", id)
	}
	return task, nil
}

// checkAssignee requires a member provisioned by the acting admin.
func (s *TaskService) checkAssignee(ctx context.Context, actor model.Actor, id string) error {
	member, err := s.users.GetByID(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return &model.TaskError{Kind: model.KindNotFound, Message: "assigned member not found"}
	}
	if err != nil {
		return err
	}
	if member.Role != model.RoleMember {
		return model.Validationf("assigned_to must reference a member")
	}
	if member.CreatedBy != actor.ID {
		return model.Forbidden("member %s belongs to another admin", id)
	}
	return nil
}

// checkDependency requires an existing task of the same admin and rejects
// a chain that loops back on itself.
func (s *TaskService) checkDependency(ctx context.Context, actor model.Actor, id string) error {
	dep, err := s.tasks.GetByID(ctx, id)
	if errors.Is(err, model.ErrTaskNotFound) {
		return model.ErrDependencyNotFound
	}
	if err != nil {
		return err
	}
	if dep.CreatedBy != actor.ID {
		return model.Forbidden("dependent task %s was created by another admin", id)
	}

	seen := map[string]bool{dep.ID: true}
	for next := dep.DependentTask; next != ""; {
		if seen[next] || len(seen) > maxDependencyChain {
			return model.ErrDependencyCycle
		}
		seen[next] = true
		t, err := s.tasks.GetByID(ctx, next)
		if errors.Is(err, model.ErrTaskNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		next = t.DependentTask
	}
	return nil
}

func outcomeOf(err error) string {
	switch model.KindOf(err) {
	case model.KindBlocked:
		return OutcomeBlocked
	case model.KindInvalidTransition:
		return OutcomeInvalid
	case model.KindAuthorization:
		return OutcomeForbidden
	case model.KindValidation, model.KindConflict:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
