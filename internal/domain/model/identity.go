package model

import "time"

// Identity is a verified principal. It is bound to a connection once at handshake and never changes.
type Identity struct {
	UserID    string
	Roles     []string
	ExpiresAt time.Time // zero means no expiry
}

// Valid reports whether the identity is established and not expired at t.
func (i Identity) Valid(t time.Time) bool {
	if i.UserID == "" {
		return false
	}
	return i.ExpiresAt.IsZero() || t.Before(i.ExpiresAt)
}

