// Package transition decides task status moves. It performs no I/O: the
// result depends only on the current status, the actor's role and the
// status of the task's dependency.
package transition

import (
	"github.com/hiroki-koketsu/task-assignment/internal/model"
)

// Dependency describes the prerequisite task of the task being moved.
type Dependency struct {
	ID     string
	Name   string
	Status model.Status
}

// Next returns the status the task moves to when its assignee advances it.
//
// Errors, in the order they are checked:
//   - invalid transition when current is unknown or terminal
//   - authorization when role is not a member
//   - *model.BlockedError when dep is not started or still in progress
func Next(current model.Status, role model.Role, dep *Dependency) (model.Status, error) {
	if !current.Valid() {
		return "", model.InvalidTransition(current, "unknown status")
	}
	if current.IsTerminal() {
		return "", model.InvalidTransition(current, "task is already finished")
	}
	if role != model.RoleMember {
		return "", model.Forbidden("only the assigned member can advance a task")
	}
	if dep != nil && blocks(dep.Status) {
		return "", &model.BlockedError{
			DependencyID:     dep.ID,
			DependencyName:   dep.Name,
			DependencyStatus: dep.Status,
		}
	}

	next, ok := Allowed(current)
	if !ok {
		return "", model.InvalidTransition(current, "no forward transition")
	}
	return next, nil
}

// Allowed returns the forward target of current, if any.
func Allowed(current model.Status) (model.Status, bool) {
	switch current {
	case model.StatusNotStarted:
		return model.StatusInProgress, true
	case model.StatusInProgress:
		return model.StatusCompleted, true
	case model.StatusCompleted, model.StatusTerminated:
		return "", false
	default:
		return "", false
	}
}

// Terminate returns the status an admin moves a task to when stopping it.
// Dependencies never gate termination.
func Terminate(current model.Status, role model.Role) (model.Status, error) {
	if !current.Valid() {
		return "", model.InvalidTransition(current, "unknown status")
	}
	if current.IsTerminal() {
		return "", model.InvalidTransition(current, "task is already finished")
	}
	if role != model.RoleAdmin {
		return "", model.Forbidden("only an admin can terminate a task")
	}
	return model.StatusTerminated, nil
}

// blocks reports whether a dependency in status s holds back its dependents.
// A terminated dependency releases them, as a completed one does.
func blocks(s model.Status) bool {
	switch s {
	case model.StatusNotStarted, model.StatusInProgress:
		return true
	case model.StatusCompleted, model.StatusTerminated:
		return false
	default:
		return true
	}
}
