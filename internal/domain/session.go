package domain

import (
	"strings"
	"time"
)

// LoginKind discriminates the two mutually exclusive account populations
// the platform authenticates: internal organization members and external
// suppliers. The backend encodes it as a claim on the access token.
type LoginKind string

const (
	LoginKindMember   LoginKind = "member"
	LoginKindSupplier LoginKind = "supplier"
)

// Claims is the decoded payload of the access token. The client treats
// every field as informational; permission evaluation happens server-side.
type Claims struct {
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles,omitempty"`
	Kind        LoginKind `json:"kind"`
	Permissions []string  `json:"permissions,omitempty"`
}

// HasPermission reports whether the claims carry the given "MODULE:ACTION"
// permission string. Matching is exact and case-insensitive; the client
// never interprets the module or action halves.
func (c Claims) HasPermission(permission string) bool {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false
	}
	for _, candidate := range c.Permissions {
		if strings.EqualFold(strings.TrimSpace(candidate), permission) {
			return true
		}
	}
	return false
}

// Session is the authenticated identity held by the client. It is replaced
// as a whole on every renewal, never mutated field by field.
type Session struct {
	AccessToken  string
	RefreshToken string
	Claims       Claims
	ExpiresAt    time.Time
}

// Expired reports whether the access token's expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// ExpiringWithin reports whether the access token expires inside the given
// lookahead window. An already expired session is also expiring.
func (s Session) ExpiringWithin(now time.Time, window time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(window))
}

// CanRenew reports whether the session carries a refresh token and can
// therefore mint a new access token without user interaction.
func (s Session) CanRenew() bool {
	return strings.TrimSpace(s.RefreshToken) != ""
}

// Validate checks the invariant every adopted session must satisfy: a
// non-empty access token whose expiry is in the future. A session that is
// expired and cannot renew is unusable and must be discarded.
func (s Session) Validate(now time.Time) error {
	if strings.TrimSpace(s.AccessToken) == "" {
		return ErrMalformedSession
	}
	if s.ExpiresAt.IsZero() {
		return ErrMalformedSession
	}
	if s.Expired(now) {
		if !s.CanRenew() {
			return ErrSessionNotRenewable
		}
		return ErrSessionExpired
	}
	return nil
}
