// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents the account that owns entries.
//
// The password hash is deliberately absent: it lives only inside the
// repository layer, so no value built from this type can leak it.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Username  string    `json:"username"  db:"username"` // case-sensitive, unique
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Identity is what the authentication boundary hands to owner-scoped operations.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Identity returns the caller identity for u.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}
