package auth

import (
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

type Action string

const (
	ActionCreateTask       Action = "task:create"
	ActionReadTask         Action = "task:read"
	ActionUpdateTask       Action = "task:update"
	ActionDeleteTask       Action = "task:delete"
	ActionAssignTask       Action = "task:assign"
	ActionSetDeadline      Action = "task:deadline"
	ActionChangeStatus     Action = "task:status"
	ActionOverrideStatus   Action = "task:status_override"
	ActionComment          Action = "task:comment"
	ActionUploadAttachment Action = "attachment:upload"
	ActionDeleteAttachment Action = "attachment:delete"
)

// TaskResource is what the policy needs to know about a task. The zero value
// stands for a task that does not exist yet.
type TaskResource struct {
	CreatorID  int64
	AssigneeID *int64
}

func (r TaskResource) IsAssignee(userID int64) bool {
	return r.AssigneeID != nil && *r.AssigneeID == userID
}

func (r TaskResource) IsCreator(userID int64) bool {
	return r.CreatorID != 0 && r.CreatorID == userID
}

// Authorize returns nil when actor may perform action on res and
// internal.ErrForbidden otherwise.
//
// Admins may do anything. Managers may create tasks and read every task, and
// manage the tasks they created. Employees may read, comment on, attach to and
// move forward the tasks assigned to them. Whether a status move is a legal
// step is decided by the task service, not here.
func Authorize(actor *User, res TaskResource, action Action) error {
	if allowed(actor, res, action) {
		return nil
	}
	return internal.ErrForbidden
}

func allowed(actor *User, res TaskResource, action Action) bool {
	if actor == nil || actor.ID == 0 {
		return false
	}

	switch actor.Role {
	case user.RoleAdmin:
		return true

	case user.RoleManager:
		switch action {
		case ActionCreateTask, ActionReadTask:
			return true
		case ActionComment, ActionUploadAttachment:
			return res.IsCreator(actor.ID) || res.IsAssignee(actor.ID)
		default:
			return res.IsCreator(actor.ID)
		}

	case user.RoleEmployee:
		switch action {
		case ActionReadTask, ActionChangeStatus, ActionComment, ActionUploadAttachment:
			return res.IsAssignee(actor.ID)
		}
		return false
	}

	return false
}

// CanSeeAll reports whether the actor's listings are unscoped.
func CanSeeAll(actor *User) bool {
	return actor != nil && (actor.Role == user.RoleAdmin || actor.Role == user.RoleManager)
}
