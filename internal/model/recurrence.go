package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRecurrenceType = errors.New("model: invalid recurrence type")

// RecurrenceType selects how a completed task is rescheduled. PARENT defers
// to the nearest ancestor with a concrete type.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "DAILY"
	RecurrenceWeekly  RecurrenceType = "WEEKLY"
	RecurrenceMonthly RecurrenceType = "MONTHLY"
	RecurrenceParent  RecurrenceType = "PARENT"
)

func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceParent:
		return true
	default:
		return false
	}
}

// IsConcrete reports whether r defines its own step.
func (r RecurrenceType) IsConcrete() bool {
	return r.IsValid() && r != RecurrenceParent
}

// Next advances t by one step. Monthly steps increment the month field and
// let day overflow roll into the following month (Jan 31 -> Mar 3 or Mar 2).
func (r RecurrenceType) Next(t time.Time) (time.Time, error) {
	switch r {
	case RecurrenceDaily:
		return t.AddDate(0, 0, 1), nil
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7), nil
	case RecurrenceMonthly:
		return t.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, r)
	}
}

// Schedule is the set of recurrence parameters governing a task. Either
// ExpiresAt bounds the schedule by date, or Remaining counts the occurrences
// still to be generated; both nil means the schedule is open ended.
type Schedule struct {
	Type      RecurrenceType
	ExpiresAt *time.Time
	Remaining *int
}

// IsZero reports whether no recurrence is configured.
func (s Schedule) IsZero() bool {
	return s.Type == ""
}

// Continue computes the schedule carried by the successor of an occurrence
// whose next deadline is next. ok is false when the schedule is exhausted.
func (s Schedule) Continue(next time.Time) (Schedule, bool, error) {
	if !s.Type.IsConcrete() {
		return Schedule{}, false, fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, s.Type)
	}
	if s.ExpiresAt != nil {
		if next.After(*s.ExpiresAt) {
			return Schedule{}, false, nil
		}
		return Schedule{Type: s.Type, ExpiresAt: s.ExpiresAt, Remaining: s.Remaining}, true, nil
	}
	if s.Remaining == nil {
		return Schedule{Type: s.Type}, true, nil
	}
	if *s.Remaining <= 0 {
		return Schedule{}, false, nil
	}
	left := *s.Remaining - 1
	return Schedule{Type: s.Type, Remaining: &left}, true, nil
}
