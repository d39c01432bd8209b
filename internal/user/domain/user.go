package domain

import (
	"errors"
	"strings"
	"time"
)

// RoleUser is the role assigned to newly created users.
const RoleUser = "USER"

// User is the core user entity. ID is a snowflake id.
type User struct {
	ID       int64
	Email    string
	Nickname string
	Role     string
	// Provider and ProviderSubject identify the external account the user signed in with.
	Provider        string
	ProviderSubject string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
// An empty Role is defaulted to RoleUser.
func (u *User) Validate() error {
	if u.ID <= 0 {
		return errors.New("id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.Provider == "" || u.ProviderSubject == "" {
		return errors.New("provider and provider subject are required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}
