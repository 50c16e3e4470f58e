package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so callers can tell "not allowed"
// from "not yet possible" from "bad input".
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAuthorization     ErrorKind = "authorization"
	KindNotFound          ErrorKind = "not_found"
	KindBlocked           ErrorKind = "blocked_transition"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindConflict          ErrorKind = "conflict"
	KindStorage           ErrorKind = "storage"
)

// TaskError represents a domain error.
type TaskError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is matches another TaskError of the same kind. A target with a message
// must match that message too, so sentinels compare as specific errors.
func (e *TaskError) Is(target error) bool {
	t, ok := target.(*TaskError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// BlockedError is returned when a dependency has not finished yet.
type BlockedError struct {
	DependencyID     string
	DependencyName   string
	DependencyStatus Status
}

func (e *BlockedError) Error() string {
	name := e.DependencyName
	if name == "" {
		name = "dependency"
	}
	return fmt.Sprintf("%s(%s) task is not completed yet", name, e.DependencyID)
}

// Is lets errors.Is(err, ErrBlocked) match any blocked transition.
func (e *BlockedError) Is(target error) bool {
	t, ok := target.(*TaskError)
	return ok && t.Kind == KindBlocked && t.Message == ""
}

// Kind sentinels. errors.Is(err, ErrValidation) matches every validation
// failure regardless of message.
var (
	ErrValidation        = &TaskError{Kind: KindValidation}
	ErrAuthorization     = &TaskError{Kind: KindAuthorization}
	ErrNotFound          = &TaskError{Kind: KindNotFound}
	ErrBlocked           = &TaskError{Kind: KindBlocked}
	ErrInvalidTransition = &TaskError{Kind: KindInvalidTransition}
	ErrConflict          = &TaskError{Kind: KindConflict}
	ErrStorage           = &TaskError{Kind: KindStorage}
)

var (
	ErrTaskNotFound       = &TaskError{Kind: KindNotFound, Message: "task not found"}
	ErrUserNotFound       = &TaskError{Kind: KindNotFound, Message: "user not found"}
	ErrDependencyNotFound = &TaskError{Kind: KindNotFound, Message: "dependent task not found"}

	ErrNameRequired        = &TaskError{Kind: KindValidation, Message: "name is required"}
	ErrDescriptionRequired = &TaskError{Kind: KindValidation, Message: "description is required"}
	ErrAssigneeRequired    = &TaskError{Kind: KindValidation, Message: "assigned_to is required"}
	ErrInvalidCost         = &TaskError{Kind: KindValidation, Message: "per_hour_cost must be greater than zero"}
	ErrEndDateRequired     = &TaskError{Kind: KindValidation, Message: "end_date is required"}
	ErrEndBeforeStart      = &TaskError{Kind: KindValidation, Message: "end_date must not be before created_date"}
	ErrHoursRequired       = &TaskError{Kind: KindValidation, Message: "reported_hours must be greater than zero to complete a task"}
	ErrDependencyCycle     = &TaskError{Kind: KindValidation, Message: "dependent task chain contains a cycle"}
	ErrInvalidEmail        = &TaskError{Kind: KindValidation, Message: "email is invalid"}
	ErrPasswordTooShort    = &TaskError{Kind: KindValidation, Message: "password must be at least 6 characters long"}

	ErrVersionConflict = &TaskError{Kind: KindConflict, Message: "task was modified concurrently"}
	ErrEmailTaken      = &TaskError{Kind: KindConflict, Message: "user already exists"}

	ErrInvalidCredentials = &TaskError{Kind: KindAuthorization, Message: "invalid email or password"}
)

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return &TaskError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns an authorization error with a formatted message.
func Forbidden(format string, args ...any) error {
	return &TaskError{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition returns an invalid transition error for a move out of from.
func InvalidTransition(from Status, format string, args ...any) error {
	return &TaskError{Kind: KindInvalidTransition, Message: fmt.Sprintf("%s: %s", from, fmt.Sprintf(format, args...))}
}

// StorageError wraps a repository failure.
func StorageError(op string, err error) error {
	return &TaskError{Kind: KindStorage, Message: op, Err: err}
}

// KindOf classifies err. Errors that carry no domain kind are storage
// failures from the caller's point of view.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return KindBlocked
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindStorage
}
