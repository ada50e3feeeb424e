package accounts

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user does not exist
var ErrUserNotFound = errors.New("user not found")

// User is someone who signed in with Airtable. Tokens never leave the server.
type User struct {
	ID             string    `json:"id"`
	AirtableUserID string    `json:"airtableUserId"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	LastLogin      time.Time `json:"lastLogin"`
}

// UserStore manages user persistence
type UserStore interface {
	// Upsert creates a user or, when one with the same AirtableUserID exists,
	// refreshes its tokens, email and login time. It returns the stored user.
	Upsert(user *User) (*User, error)

	// Get a user by ID
	Get(id string) (*User, error)

	// Update an existing user's profile and tokens
	Update(user *User) error

	// ListExpiringBefore returns users holding a refresh token whose access
	// token expires before t
	ListExpiringBefore(t time.Time) ([]*User, error)
}
