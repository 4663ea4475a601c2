package model

import (
	"strings"
	"time"
)

// User is the slice of the platform user this service reads and flags.
type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	Inactive      bool
	DeactivatedAt *time.Time
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Deactivate marks the user inactive. It reports false when they already were.
func (u *User) Deactivate(at time.Time) bool {
	if u.Inactive {
		return false
	}
	u.Inactive = true
	u.DeactivatedAt = &at
	return true
}

func (u *User) Reactivate() bool {
	if !u.Inactive {
		return false
	}
	u.Inactive = false
	u.DeactivatedAt = nil
	return true
}
