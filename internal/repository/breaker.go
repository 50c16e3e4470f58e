package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker in front of a store.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	Timeout     time.Duration
	Logger      *slog.Logger
}

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// Domain outcomes are answers from a healthy store.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return model.KindOf(err) != model.KindStorage
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.Logger != nil {
				s.Logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			}
		},
	})
}

// WithBreaker wraps both repositories of a store with a shared breaker.
func WithBreaker(store *Store, s BreakerSettings) *Store {
	cb := newBreaker(s)
	return &Store{
		Tasks: &BreakerTaskRepository{next: store.Tasks, cb: cb},
		Users: &BreakerUserRepository{next: store.Users, cb: cb},
		close: store.Close,
	}
}

func execute[T any](cb *gobreaker.CircuitBreaker, op string, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, model.StorageError(op, err)
		}
		return zero, err
	}
	return out.(T), nil
}

// BreakerTaskRepository fails fast while the store is unhealthy.
type BreakerTaskRepository struct {
	next TaskRepository
	cb   *gobreaker.CircuitBreaker
}

func (r *BreakerTaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	return execute(r.cb, "insert task", func() (*model.Task, error) { return r.next.Create(ctx, task) })
}

func (r *BreakerTaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	return execute(r.cb, "select task", func() (*model.Task, error) { return r.next.GetByID(ctx, id) })
}

func (r *BreakerTaskRepository) Find(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	return execute(r.cb, "query tasks", func() ([]*model.Task, error) { return r.next.Find(ctx, filter) })
}

func (r *BreakerTaskRepository) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	return execute(r.cb, "update task", func() (*model.Task, error) { return r.next.Update(ctx, id, patch) })
}

func (r *BreakerTaskRepository) Count(ctx context.Context) (int64, error) {
	return execute(r.cb, "count tasks", func() (int64, error) { return r.next.Count(ctx) })
}

// BreakerUserRepository fails fast while the store is unhealthy.
type BreakerUserRepository struct {
	next UserRepository
	cb   *gobreaker.CircuitBreaker
}

func (r *BreakerUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	return execute(r.cb, "insert user", func() (*model.User, error) { return r.next.Create(ctx, user) })
}

func (r *BreakerUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return execute(r.cb, "select user", func() (*model.User, error) { return r.next.GetByID(ctx, id) })
}

func (r *BreakerUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return execute(r.cb, "select user", func() (*model.User, error) { return r.next.GetByEmail(ctx, email) })
}

func (r *BreakerUserRepository) ListMembers(ctx context.Context, createdBy string) ([]*model.User, error) {
	return execute(r.cb, "query users", func() ([]*model.User, error) { return r.next.ListMembers(ctx, createdBy) })
}
