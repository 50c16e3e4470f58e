package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const timeLayout = time.RFC3339Nano

// OpenSQLite opens (and migrates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		Tasks: &SQLiteTaskRepository{db: db},
		Users: &SQLiteUserRepository{db: db},
		close: func(context.Context) error { return db.Close() },
	}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_by ON users(created_by, role);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			created_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			completion_date TEXT,
			assigned_to TEXT NOT NULL,
			created_by TEXT NOT NULL,
			dependent_task TEXT NOT NULL DEFAULT '',
			per_hour_cost REAL NOT NULL,
			total_hours REAL NOT NULL DEFAULT 0,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created_by ON tasks(created_by);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to ON tasks(assigned_to);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	return nil
}

// SQLiteTaskRepository stores tasks in SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

const taskColumns = `id, name, description, status, created_date, end_date, completion_date,
	assigned_to, created_by, dependent_task, per_hour_cost, total_hours, version, created_at, updated_at`

// Create inserts a new task.
func (r *SQLiteTaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "SQLiteTaskRepository.Create",
		trace.WithAttributes(attribute.String("task.name", task.Name)),
	)
	defer span.End()

	now := time.Now().UTC()
	stored := task.Clone()
	stored.ID = uuid.New().String()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Name, stored.Description, string(stored.Status),
		formatTime(stored.CreatedDate), formatTime(stored.EndDate), formatTimePtr(stored.CompletionDate),
		stored.AssignedTo, stored.CreatedBy, stored.DependentTask,
		stored.PerHourCost, stored.TotalHours, stored.Version,
		formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt),
	)
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("insert task", err)
	}

	span.SetAttributes(attribute.String("task.id", stored.ID))
	return stored, nil
}

// GetByID retrieves a task by its ID.
func (r *SQLiteTaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "SQLiteTaskRepository.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("select task", err)
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return task, nil
}

// Find returns matching tasks in insertion order.
func (r *SQLiteTaskRepository) Find(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "SQLiteTaskRepository.Find")
	defer span.End()

	var where []string
	var args []any
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("query tasks", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, model.StorageError("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("iterate tasks", err)
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Update applies patch with a single conditional UPDATE on id and version.
func (r *SQLiteTaskRepository) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "SQLiteTaskRepository.Update",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Int64("task.version", patch.Version),
		),
	)
	defer span.End()

	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{formatTime(time.Now().UTC())}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.TotalHours != nil {
		sets = append(sets, "total_hours = ?")
		args = append(args, *patch.TotalHours)
	}
	if patch.CompletionDate != nil {
		sets = append(sets, "completion_date = COALESCE(completion_date, ?)")
		args = append(args, formatTime(*patch.CompletionDate))
	}
	if patch.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, formatTime(*patch.EndDate))
	}
	if patch.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, *patch.AssignedTo)
	}
	args = append(args, id, patch.Version)

	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`, args...)
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("update task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, model.StorageError("update task", err)
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTaskNotFound
		}
		if err != nil {
			return nil, model.StorageError("select task", err)
		}
		span.SetAttributes(attribute.Bool("task.conflict", true))
		return nil, model.ErrVersionConflict
	}

	return r.GetByID(ctx, id)
}

// Count returns the current number of tasks.
func (r *SQLiteTaskRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, model.StorageError("count tasks", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t              model.Task
		status         string
		createdDate    string
		endDate        string
		completionDate sql.NullString
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &status, &createdDate, &endDate, &completionDate,
		&t.AssignedTo, &t.CreatedBy, &t.DependentTask, &t.PerHourCost, &t.TotalHours, &t.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	if t.CreatedDate, err = time.Parse(timeLayout, createdDate); err != nil {
		return nil, err
	}
	if t.EndDate, err = time.Parse(timeLayout, endDate); err != nil {
		return nil, err
	}
	if completionDate.Valid {
		d, err := time.Parse(timeLayout, completionDate.String)
		if err != nil {
			return nil, err
		}
		t.CompletionDate = &d
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// SQLiteUserRepository stores users in SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

const userColumns = `id, name, email, password_hash, role, created_by, created_at`

// Create inserts a new user. A duplicate email fails with model.ErrEmailTaken.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.Create",
		trace.WithAttributes(attribute.String("user.role", string(user.Role))),
	)
	defer span.End()

	stored := *user
	stored.ID = uuid.New().String()
	stored.Email = model.NormalizeEmail(user.Email)
	stored.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Name, stored.Email, stored.PasswordHash, string(stored.Role),
		stored.CreatedBy, formatTime(stored.CreatedAt))
	if isConstraintViolation(err) {
		return nil, model.ErrEmailTaken
	}
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("insert user", err)
	}

	span.SetAttributes(attribute.String("user.id", stored.ID))
	return &stored, nil
}

// GetByID retrieves a user by its ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.GetByID",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email address.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.GetByEmail")
	defer span.End()

	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, model.NormalizeEmail(email))
}

func (r *SQLiteUserRepository) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, model.StorageError("select user", err)
	}
	return u, nil
}

// ListMembers returns members provisioned by createdBy, or every member when
// createdBy is empty.
func (r *SQLiteUserRepository) ListMembers(ctx context.Context, createdBy string) ([]*model.User, error) {
	ctx, span := tracer.Start(ctx, "SQLiteUserRepository.ListMembers")
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM users WHERE role = ?`
	args := []any{string(model.RoleMember)}
	if createdBy != "" {
		query += ` AND created_by = ?`
		args = append(args, createdBy)
	}
	query += ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.StorageError("query users", err)
	}
	defer rows.Close()

	members := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, model.StorageError("scan user", err)
		}
		members = append(members, u)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("iterate users", err)
	}

	span.SetAttributes(attribute.Int("user.count", len(members)))
	return members, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		role      string
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Extended codes keep the primary code in the low byte.
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
