package auth

import (
	"slices"
	"time"
)

// Identity represents an authenticated principal.
type Identity struct {
	// Subject is the token subject (sub claim).
	Subject string

	// Roles are the roles granted by the token.
	Roles []string

	// Claims contains the raw claims from the token.
	Claims map[string]any

	// ExpiresAt is when the token expires. Zero means no expiry.
	ExpiresAt time.Time

	// IssuedAt is when the token was issued.
	IssuedAt time.Time
}

// HasRole reports whether the identity holds role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Roles, role)
}

// IsExpired reports whether the identity expired before now.
func (id *Identity) IsExpired(now time.Time) bool {
	if id == nil || id.ExpiresAt.IsZero() {
		return false
	}
	return now.After(id.ExpiresAt)
}
