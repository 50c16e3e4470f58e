package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusTerminated}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusTerminated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTerminated:
		return true
	default:
		return false
	}
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", Validationf("unknown status %q", v)
	}
	return s, nil
}

// Task represents a unit of work assigned by an admin to a member.
type Task struct {
	ID             string     `json:"id" bson:"_id"`
	Name           string     `json:"name" bson:"name"`
	Description    string     `json:"description" bson:"description"`
	Status         Status     `json:"status" bson:"status"`
	CreatedDate    time.Time  `json:"created_date" bson:"createdDate"`
	EndDate        time.Time  `json:"end_date" bson:"endDate"`
	CompletionDate *time.Time `json:"completion_date,omitempty" bson:"completionDate,omitempty"`
	AssignedTo     string     `json:"assigned_to" bson:"assignedTo"`
	CreatedBy      string     `json:"created_by" bson:"createdBy"`
	DependentTask  string     `json:"dependent_task,omitempty" bson:"dependentTask,omitempty"`
	PerHourCost    float64    `json:"per_hour_cost" bson:"perHourCost"`
	TotalHours     float64    `json:"total_hours" bson:"totalHours"`
	Version        int64      `json:"version" bson:"version"`
	CreatedAt      time.Time  `json:"created_at" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updatedAt"`
}

// TotalCost returns the derived cost of the task. ok is false unless the
// task has been completed.
func (t *Task) TotalCost() (cost float64, ok bool) {
	return TotalCost(t.TotalHours, t.PerHourCost, t.Status)
}

// TotalCost is the single definition of task cost.
func TotalCost(totalHours, perHourCost float64, status Status) (float64, bool) {
	if status != StatusCompleted {
		return 0, false
	}
	return totalHours * perHourCost, true
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletionDate != nil {
		d := *t.CompletionDate
		c.CompletionDate = &d
	}
	return &c
}

// TaskPatch is a partial update applied by a repository. Version is the
// version the caller read; the update fails with ErrVersionConflict when the
// stored task has moved on.
type TaskPatch struct {
	Version        int64
	Status         *Status
	TotalHours     *float64
	CompletionDate *time.Time
	EndDate        *time.Time
	AssignedTo     *string
}

// Apply writes the patch onto t and bumps its version. A completion date that
// is already set is never overwritten.
func (t *Task) Apply(p TaskPatch, now time.Time) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.TotalHours != nil {
		t.TotalHours = *p.TotalHours
	}
	if p.CompletionDate != nil && t.CompletionDate == nil {
		d := *p.CompletionDate
		t.CompletionDate = &d
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	t.Version++
	t.UpdatedAt = now
}

// TaskFilter selects tasks. Zero fields match everything.
type TaskFilter struct {
	CreatedBy  string
	AssignedTo string
	Status     *Status
}

// Match reports whether t satisfies the filter.
func (f TaskFilter) Match(t *Task) bool {
	if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	return true
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CreatedDate   time.Time `json:"created_date"`
	EndDate       time.Time `json:"end_date"`
	AssignedTo    string    `json:"assigned_to"`
	CreatedBy     string    `json:"created_by,omitempty"`
	PerHourCost   float64   `json:"per_hour_cost"`
	DependentTask string    `json:"dependent_task,omitempty"`
}

// Validate checks the fields that need no storage lookups. A zero
// CreatedDate is accepted; the service defaults it.
func (r *CreateTaskRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrDescriptionRequired
	}
	if strings.TrimSpace(r.AssignedTo) == "" {
		return ErrAssigneeRequired
	}
	if !(r.PerHourCost > 0) {
		return ErrInvalidCost
	}
	if r.EndDate.IsZero() {
		return ErrEndDateRequired
	}
	if !r.CreatedDate.IsZero() && r.EndDate.Before(r.CreatedDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// AdvanceTaskRequest represents the request body for moving a task forward.
type AdvanceTaskRequest struct {
	ReportedHours *float64 `json:"reported_hours,omitempty"`
}

// UpdateTaskRequest represents the request body for an admin update.
type UpdateTaskRequest struct {
	EndDate    *time.Time `json:"end_date,omitempty"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r *UpdateTaskRequest) Empty() bool {
	return r.EndDate == nil && r.AssignedTo == nil
}

// UserRef is the display form of a user inside a task view.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskRef is the display form of a dependency inside a task view.
type TaskRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// TaskView is the outbound projection of a task with resolved references.
type TaskView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	CreatedDate    time.Time  `json:"created_date"`
	EndDate        time.Time  `json:"end_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	AssignedTo     UserRef    `json:"assigned_to"`
	CreatedBy      UserRef    `json:"created_by"`
	DependentTask  *TaskRef   `json:"dependent_task,omitempty"`
	PerHourCost    float64    `json:"per_hour_cost"`
	TotalHours     float64    `json:"total_hours"`
	TotalCost      *float64   `json:"total_cost,omitempty"`
	Version        int64      `json:"version"`
}

// NewTaskView builds the projection. Missing references keep only their ID.
func NewTaskView(t *Task, assignee, creator *User, dep *Task) *TaskView {
	v := &TaskView{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Status:         t.Status,
		CreatedDate:    t.CreatedDate,
		EndDate:        t.EndDate,
		CompletionDate: t.CompletionDate,
		AssignedTo:     UserRef{ID: t.AssignedTo},
		CreatedBy:      UserRef{ID: t.CreatedBy},
		PerHourCost:    t.PerHourCost,
		TotalHours:     t.TotalHours,
		Version:        t.Version,
	}
	if assignee != nil {
		v.AssignedTo = assignee.Ref()
	}
	if creator != nil {
		v.CreatedBy = creator.Ref()
	}
	if t.DependentTask != "" {
		v.DependentTask = &TaskRef{ID: t.DependentTask}
		if dep != nil {
			v.DependentTask.Name = dep.Name
			v.DependentTask.Status = dep.Status
		}
	}
	if cost, ok := t.TotalCost(); ok {
		v.TotalCost = &cost
	}
	return v
}
