package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the global role supplied by the identity provider.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Stat names a counter kept on the user row.
type Stat string

const (
	StatTasksCompleted Stat = "tasks_completed"
	StatReviewsGiven   Stat = "reviews_given"
	StatTasksAccepted  Stat = "tasks_accepted"
)

func (s Stat) IsValid() bool {
	switch s {
	case StatTasksCompleted, StatReviewsGiven, StatTasksAccepted:
		return true
	default:
		return false
	}
}

// User stores identity and Telegram metadata.
type User struct {
	ID             string  `gorm:"primaryKey;size:36"`
	TelegramID     *int64  `gorm:"uniqueIndex"`
	Email          *string `gorm:"uniqueIndex"`
	Name           string
	Username       string
	Role           Role `gorm:"size:8;not null;default:USER"`
	TasksCompleted int  `gorm:"not null;default:0"`
	ReviewsGiven   int  `gorm:"not null;default:0"`
	TasksAccepted  int  `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// CanManageUsers is the single place where the ADMIN role grants extra
// capabilities over the user directory.
func (u User) CanManageUsers() bool {
	return u.Role == RoleAdmin
}

// EmailAddress returns the email or an empty string.
func (u User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// Profile is the reduced projection of a user shown to other users.
type Profile struct {
	ID    string
	Name  string
	Email string
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.EmailAddress()}
}
