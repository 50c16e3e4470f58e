// Package service implements the task assignment use cases. Every operation
// takes the calling model.Actor explicitly and checks it exactly once, in
// authorize, against the capability the operation declares.
package service

import (
	"slices"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
)

// Capability names an operation that is subject to role checks.
type Capability string

const (
	CapCreateTask    Capability = "task.create"
	CapListTasks     Capability = "task.list"
	CapViewTask      Capability = "task.view"
	CapAdvanceTask   Capability = "task.advance"
	CapTerminateTask Capability = "task.terminate"
	CapUpdateTask    Capability = "task.update"
	CapManageMembers Capability = "member.manage"
)

var capabilityRoles = map[Capability][]model.Role{
	CapCreateTask:    {model.RoleAdmin},
	CapListTasks:     {model.RoleAdmin, model.RoleMember},
	CapViewTask:      {model.RoleAdmin, model.RoleMember},
	CapAdvanceTask:   {model.RoleMember},
	CapTerminateTask: {model.RoleAdmin},
	CapUpdateTask:    {model.RoleAdmin},
	CapManageMembers: {model.RoleAdmin},
}

func authorize(actor model.Actor, c Capability) error {
	if actor.IsZero() {
		return model.Forbidden("%s: no authenticated actor", c)
	}
	roles, ok := capabilityRoles[c]
	if !ok || !slices.Contains(roles, actor.Role) {
		return model.Forbidden("%s: role %q is not allowed", c, actor.Role)
	}
	return nil
}

// canSee reports whether the actor owns the task from its side of the
// relationship: admins see what they created, members what they were given.
func canSee(actor model.Actor, t *model.Task) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return t.CreatedBy == actor.ID
	case model.RoleMember:
		return t.AssignedTo == actor.ID
	default:
		return false
	}
}
