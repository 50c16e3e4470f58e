// Package repository stores tasks and users. Every implementation returns
// model.ErrTaskNotFound / model.ErrUserNotFound for missing records,
// model.ErrVersionConflict for stale task updates, model.ErrEmailTaken for
// duplicate accounts, and wraps everything else with model.StorageError.
package repository

import (
	"context"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/task-assignment/internal/repository")

// TaskRepository is the durable store of tasks.
type TaskRepository interface {
	// Create assigns an ID, sets version 1 and stores the task.
	Create(ctx context.Context, task *model.Task) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	// Find returns matching tasks in insertion order.
	Find(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error)
	// Update applies patch if the stored version equals patch.Version.
	Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository is the durable store of accounts. ListMembers is the
// member directory consulted for assignment.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListMembers(ctx context.Context, createdBy string) ([]*model.User, error)
}

// Store bundles both repositories and the resources behind them.
type Store struct {
	Tasks TaskRepository
	Users UserRepository
	close func(context.Context) error
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
