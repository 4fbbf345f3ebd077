package app

import (
	"errors"

	"taskhub/api/internal/rbac"
)

// ErrDenied marks an operation the caller is not allowed to perform. The
// HTTP layer turns it into a redirect, never an error page, and the
// operation must not have touched any state.
var ErrDenied = errors.New("access denied")

// Kind identifies the entity a target points at.
type Kind string

const (
	KindProject Kind = "project"
	KindTask    Kind = "task"
	KindMessage Kind = "message"
	KindNote    Kind = "note"
	KindFile    Kind = "file"
)

// Target is the ownership shape of the entity an action is aimed at.
// OwnerID is the author or uploader; AssigneeID is set for tasks only.
type Target struct {
	Kind       Kind
	OwnerID    int64
	AssigneeID int64
	ProjectID  int64
}

// Allowed decides whether a user may perform an action on a target.
// Admins may do anything. Everyone else needs membership in the target's
// project, and write actions additionally require ownership:
//
//	project   view for members, everything else admin only
//	task      create for members, edit and delete for author or assignee
//	message   create for members, edit and delete for the author
//	note      private to its owner in every respect beyond create
//	file      create for members, edit and delete for the uploader
func Allowed(role rbac.Role, userID int64, action rbac.Action, t Target, member bool) bool {
	if rbac.IsAdmin(role) {
		return true
	}
	if !member {
		return false
	}

	switch action {
	case rbac.ActionView:
		if t.Kind == KindNote {
			return t.OwnerID == userID
		}
		return true
	case rbac.ActionCreate:
		// Creating a project itself is admin territory.
		return t.Kind != KindProject
	case rbac.ActionEdit:
		switch t.Kind {
		case KindProject:
			return false
		case KindTask:
			return t.OwnerID == userID || t.AssigneeID == userID
		default:
			return t.OwnerID == userID
		}
	case rbac.ActionDelete:
		switch t.Kind {
		case KindProject:
			return false
		case KindTask:
			return t.OwnerID == userID || t.AssigneeID == userID
		default:
			return t.OwnerID == userID
		}
	case rbac.ActionManage:
		return false
	}
	return false
}
