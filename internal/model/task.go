package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidStatus     = errors.New("model: invalid task status")
	ErrTitleRequired     = errors.New("model: task title is required")
	ErrInvalidRecurrence = errors.New("model: invalid recurrence settings")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusDone Status = "DONE"
)

func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusDone
}

// Task is a node of the task tree. ParentTaskID links subtasks to their parent.
type Task struct {
	ID                  string  `gorm:"primaryKey;size:36"`
	Title               string  `gorm:"not null"`
	Description         string
	Deadline            *time.Time
	Status              Status  `gorm:"size:8;not null;default:OPEN;index"`
	IsPublic            bool    `gorm:"default:false"`
	CreatorID           string  `gorm:"size:36;not null;index"`
	ParentTaskID        *string `gorm:"size:36;index"`
	CompletedByID       *string `gorm:"size:36;index"`
	CompletedAt         *time.Time
	RecurrenceType      *RecurrenceType `gorm:"size:8"`
	RecurrenceExpiresAt *time.Time
	Recurrences         *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// BeforeCreate assigns an opaque id to new rows.
func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	return nil
}

// HasParent reports whether the task is a subtask.
func (t Task) HasParent() bool {
	return t.ParentTaskID != nil && *t.ParentTaskID != ""
}

// IsDone reports whether the task has been completed.
func (t Task) IsDone() bool {
	return t.Status == StatusDone
}

// Schedule returns the recurrence parameters stored on the task itself.
// A task without a recurrence type yields the zero Schedule.
func (t Task) Schedule() Schedule {
	if t.RecurrenceType == nil {
		return Schedule{}
	}
	return Schedule{
		Type:      *t.RecurrenceType,
		ExpiresAt: t.RecurrenceExpiresAt,
		Remaining: t.Recurrences,
	}
}

// Summary is the reduced projection handed to callers without view access.
type Summary struct {
	ID    string
	Title string
}

func (t Task) Summary() Summary {
	return Summary{ID: t.ID, Title: t.Title}
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if t.Status == StatusDone && t.CompletedAt == nil {
		return errors.New("model: completed_at is required when task status is DONE")
	}
	if t.Status != StatusDone && (t.CompletedAt != nil || t.CompletedByID != nil) {
		return errors.New("model: completion fields must be empty when task status is not DONE")
	}
	if t.RecurrenceType != nil {
		if !t.RecurrenceType.IsValid() {
			return fmt.Errorf("%w: type %q", ErrInvalidRecurrence, *t.RecurrenceType)
		}
		if *t.RecurrenceType == RecurrenceParent && !t.HasParent() {
			return fmt.Errorf("%w: PARENT recurrence requires a parent task", ErrInvalidRecurrence)
		}
	}
	if t.Recurrences != nil && *t.Recurrences < 0 {
		return fmt.Errorf("%w: negative recurrences", ErrInvalidRecurrence)
	}
	return nil
}
