package model

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestTaskValidateSuccess(t *testing.T) {
	task := Task{
		Title:     "Write quarterly report",
		Status:    StatusOpen,
		CreatorID: "u-1",
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("expected valid task, got error: %v", err)
	}
}

func TestTaskValidateTitle(t *testing.T) {
	task := Task{Title: "   ", Status: StatusOpen}
	if err := task.Validate(); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got %v", err)
	}
}

func TestTaskValidateCompletion(t *testing.T) {
	task := Task{Title: "Done task", Status: StatusDone}
	if err := task.Validate(); err == nil {
		t.Fatal("expected error for DONE task without completed_at")
	}

	task.Status = StatusOpen
	task.CompletedAt = ptr(time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC))
	if err := task.Validate(); err == nil {
		t.Fatal("expected error for OPEN task with completed_at")
	}
}

func TestTaskValidateRecurrence(t *testing.T) {
	task := Task{Title: "Standup", Status: StatusOpen, RecurrenceType: ptr(RecurrenceParent)}
	if err := task.Validate(); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence for top-level PARENT, got %v", err)
	}

	task.ParentTaskID = ptr("root")
	if err := task.Validate(); err != nil {
		t.Fatalf("PARENT subtask should be valid: %v", err)
	}

	task.RecurrenceType = ptr(RecurrenceType("YEARLY"))
	if err := task.Validate(); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence, got %v", err)
	}

	task.RecurrenceType = ptr(RecurrenceDaily)
	task.Recurrences = ptr(-1)
	if err := task.Validate(); !errors.Is(err, ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence for negative count, got %v", err)
	}
}

func TestTaskSchedule(t *testing.T) {
	if !(Task{}).Schedule().IsZero() {
		t.Fatal("task without recurrence type should have zero schedule")
	}
	task := Task{RecurrenceType: ptr(RecurrenceWeekly), Recurrences: ptr(2)}
	s := task.Schedule()
	if s.Type != RecurrenceWeekly || s.Remaining == nil || *s.Remaining != 2 {
		t.Fatalf("unexpected schedule: %+v", s)
	}
}

func TestParseRelationRole(t *testing.T) {
	for raw, want := range map[string]RelationRole{
		"assignee": RoleAssignee,
		" Editor ": RoleAssignee,
		"viewer":   RoleViewer,
		"tracker":  RoleViewer,
	} {
		got, err := ParseRelationRole(raw)
		if err != nil || got != want {
			t.Fatalf("ParseRelationRole(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseRelationRole("owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestUserCapabilities(t *testing.T) {
	if (User{Role: RoleUser}).CanManageUsers() {
		t.Fatal("plain user must not manage users")
	}
	if !(User{Role: RoleAdmin}).CanManageUsers() {
		t.Fatal("admin must manage users")
	}
	u := User{ID: "u-1", Name: "Ann", Email: ptr("ann@example.com")}
	if p := u.Profile(); p.Email != "ann@example.com" || p.ID != "u-1" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}
