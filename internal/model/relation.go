package model

import (
	"fmt"
	"strings"
	"time"
)

// RelationRole is the resolved relationship a user can hold on a task.
type RelationRole string

const (
	RoleAssignee RelationRole = "assignee"
	RoleViewer   RelationRole = "viewer"
)

// ParseRelationRole accepts the role names and their common aliases.
func ParseRelationRole(raw string) (RelationRole, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "assignee", "assign", "editor", "edit":
		return RoleAssignee, nil
	case "viewer", "view", "tracker", "track", "subscriber":
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("model: unknown relation role %q", raw)
	}
}

// Application is a user-initiated pending request for inclusion on a task.
type Application struct {
	TaskID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// Invitation is an owner-initiated pending request for a user to join a task.
type Invitation struct {
	TaskID    string `gorm:"primaryKey;size:36"`
	InvitedID string `gorm:"primaryKey;size:36;index"`
	InviterID string `gorm:"size:36;not null"`
	CreatedAt time.Time
}

// Assignment grants edit access on a task and its subtree.
type Assignment struct {
	TaskID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// Subscription grants view-only access on a task and its subtree.
type Subscription struct {
	TaskID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// Member is a user holding a resolved relationship on a task.
type Member struct {
	UserID string
	Role   RelationRole
}

// InvitationView is a pending invitation with its task title for the
// invited user's inbox.
type InvitationView struct {
	TaskID    string
	TaskTitle string
	InviterID string
	CreatedAt time.Time
}
