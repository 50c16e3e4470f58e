package model

import (
	"errors"
	"testing"
	"time"
)

func TestTotalCost(t *testing.T) {
	cost, ok := TotalCost(5, 10, StatusCompleted)
	if !ok || cost != 50 {
		t.Fatalf("expected 50, got %v (%v)", cost, ok)
	}
	for _, s := range []Status{StatusNotStarted, StatusInProgress, StatusTerminated} {
		if _, ok := TotalCost(5, 10, s); ok {
			t.Fatalf("%s: cost must not be computed", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" In_Progress ")
	if err != nil || s != StatusInProgress {
		t.Fatalf("unexpected: %s %v", s, err)
	}
	if _, err := ParseStatus("yet to be started"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateTaskRequest_Validate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := func() CreateTaskRequest {
		return CreateTaskRequest{
			Name:        "Write report",
			Description: "Quarterly numbers",
			CreatedDate: start,
			EndDate:     start.Add(48 * time.Hour),
			AssignedTo:  "member-1",
			PerHourCost: 10,
		}
	}

	cases := []struct {
		name   string
		mutate func(r *CreateTaskRequest)
		want   error
	}{
		{"ok", func(r *CreateTaskRequest) {}, nil},
		{"blank name", func(r *CreateTaskRequest) { r.Name = "  " }, ErrNameRequired},
		{"no description", func(r *CreateTaskRequest) { r.Description = "" }, ErrDescriptionRequired},
		{"no assignee", func(r *CreateTaskRequest) { r.AssignedTo = "" }, ErrAssigneeRequired},
		{"zero cost", func(r *CreateTaskRequest) { r.PerHourCost = 0 }, ErrInvalidCost},
		{"negative cost", func(r *CreateTaskRequest) { r.PerHourCost = -1 }, ErrInvalidCost},
		{"no end date", func(r *CreateTaskRequest) { r.EndDate = time.Time{} }, ErrEndDateRequired},
		{"end before start", func(r *CreateTaskRequest) { r.EndDate = start.Add(-time.Hour) }, ErrEndBeforeStart},
		{"end equals start", func(r *CreateTaskRequest) { r.EndDate = start }, nil},
	}
	for _, tc := range cases {
		r := valid()
		tc.mutate(&r)
		err := r.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if KindOf(err) != KindValidation {
			t.Fatalf("%s: expected validation kind, got %s", tc.name, KindOf(err))
		}
	}
}

func TestTaskApply_CompletionDateSetOnce(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	task := &Task{Status: StatusInProgress, Version: 2}

	completed := StatusCompleted
	hours := 8.0
	task.Apply(TaskPatch{Status: &completed, TotalHours: &hours, CompletionDate: &first}, first)
	task.Apply(TaskPatch{CompletionDate: &second}, second)

	if !task.CompletionDate.Equal(first) {
		t.Fatalf("completion date changed: %v", task.CompletionDate)
	}
	if task.Version != 4 {
		t.Fatalf("expected version 4, got %d", task.Version)
	}
	if task.TotalHours != 8 || task.Status != StatusCompleted {
		t.Fatalf("patch not applied: %+v", task)
	}
}

func TestNewTaskView(t *testing.T) {
	task := &Task{
		ID:            "t1",
		Name:          "Build",
		Status:        StatusCompleted,
		AssignedTo:    "m1",
		CreatedBy:     "a1",
		DependentTask: "t0",
		PerHourCost:   10,
		TotalHours:    5,
	}
	member := &User{ID: "m1", Name: "Mia", Email: "mia@example.com"}
	dep := &Task{ID: "t0", Name: "Design", Status: StatusCompleted}

	v := NewTaskView(task, member, nil, dep)
	if v.AssignedTo.Name != "Mia" || v.CreatedBy.ID != "a1" || v.CreatedBy.Name != "" {
		t.Fatalf("unexpected refs: %+v %+v", v.AssignedTo, v.CreatedBy)
	}
	if v.DependentTask == nil || v.DependentTask.Name != "Design" {
		t.Fatalf("unexpected dependency: %+v", v.DependentTask)
	}
	if v.TotalCost == nil || *v.TotalCost != 50 {
		t.Fatalf("expected cost 50, got %v", v.TotalCost)
	}

	task.Status = StatusInProgress
	if v := NewTaskView(task, nil, nil, nil); v.TotalCost != nil {
		t.Fatalf("cost must be absent before completion")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrTaskNotFound, KindNotFound},
		{Forbidden("nope"), KindAuthorization},
		{&BlockedError{DependencyID: "x"}, KindBlocked},
		{StorageError("insert", errors.New("disk full")), KindStorage},
		{errors.New("plain"), KindStorage},
		{ErrVersionConflict, KindConflict},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.want, got)
		}
	}
	if errors.Is(ErrUserNotFound, ErrTaskNotFound) {
		t.Fatalf("distinct not found sentinels must not match")
	}
	if !errors.Is(ErrTaskNotFound, ErrNotFound) {
		t.Fatalf("specific sentinel must match its kind")
	}
}

func TestBlockedError_Message(t *testing.T) {
	err := &BlockedError{DependencyID: "a1", DependencyName: "Design"}
	if err.Error() != "Design(a1) task is not completed yet" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
