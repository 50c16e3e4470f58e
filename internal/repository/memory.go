package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemoryTaskRepository provides an in-memory storage for tasks.
type MemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	order []string
}

// NewMemoryTaskRepository creates a new MemoryTaskRepository.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks: make(map[string]*model.Task),
	}
}

// Create adds a new task to the repository.
func (r *MemoryTaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryTaskRepository.Create",
		trace.WithAttributes(attribute.String("task.name", task.Name)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := task.Clone()
	stored.ID = uuid.New().String()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.tasks[stored.ID] = stored
	r.order = append(r.order, stored.ID)

	span.SetAttributes(attribute.String("task.id", stored.ID))
	return stored.Clone(), nil
}

// GetByID retrieves a task by its ID.
func (r *MemoryTaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryTaskRepository.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return task.Clone(), nil
}

// Find returns the tasks matching filter in insertion order.
func (r *MemoryTaskRepository) Find(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryTaskRepository.Find")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]*model.Task, 0)
	for _, id := range r.order {
		task := r.tasks[id]
		if filter.Match(task) {
			tasks = append(tasks, task.Clone())
		}
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Update applies a version-checked patch to an existing task.
func (r *MemoryTaskRepository) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	_, span := tracer.Start(ctx, "MemoryTaskRepository.Update",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Int64("task.version", patch.Version),
		),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}
	if task.Version != patch.Version {
		span.SetAttributes(attribute.Bool("task.conflict", true))
		return nil, model.ErrVersionConflict
	}

	task.Apply(patch, time.Now().UTC())

	span.SetAttributes(attribute.Bool("task.found", true))
	return task.Clone(), nil
}

// Count returns the current number of tasks.
func (r *MemoryTaskRepository) Count(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tasks)), nil
}

// MemoryUserRepository provides an in-memory storage for users.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	byEmail map[string]string
	order   []string
}

// NewMemoryUserRepository creates a new MemoryUserRepository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

// Create adds a new user. Emails are unique.
func (r *MemoryUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	_, span := tracer.Start(ctx, "MemoryUserRepository.Create",
		trace.WithAttributes(attribute.String("user.role", string(user.Role))),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	email := model.NormalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return nil, model.ErrEmailTaken
	}

	stored := *user
	stored.ID = uuid.New().String()
	stored.Email = email
	stored.CreatedAt = time.Now().UTC()

	r.users[stored.ID] = &stored
	r.byEmail[email] = stored.ID
	r.order = append(r.order, stored.ID)

	span.SetAttributes(attribute.String("user.id", stored.ID))
	out := stored
	return &out, nil
}

// GetByID retrieves a user by its ID.
func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	_, span := tracer.Start(ctx, "MemoryUserRepository.GetByID",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

// GetByEmail retrieves a user by email address.
func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	_, span := tracer.Start(ctx, "MemoryUserRepository.GetByEmail")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := *r.users[id]
	return &out, nil
}

// ListMembers returns members provisioned by createdBy, or every member when
// createdBy is empty.
func (r *MemoryUserRepository) ListMembers(ctx context.Context, createdBy string) ([]*model.User, error) {
	_, span := tracer.Start(ctx, "MemoryUserRepository.ListMembers")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*model.User, 0)
	for _, id := range r.order {
		u := r.users[id]
		if u.Role != model.RoleMember {
			continue
		}
		if createdBy != "" && u.CreatedBy != createdBy {
			continue
		}
		out := *u
		members = append(members, &out)
	}

	span.SetAttributes(attribute.Int("user.count", len(members)))
	return members, nil
}

// NewMemoryStore returns a Store backed by process memory.
func NewMemoryStore() *Store {
	return &Store{
		Tasks: NewMemoryTaskRepository(),
		Users: NewMemoryUserRepository(),
	}
}
