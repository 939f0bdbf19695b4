package credfile

import (
	"time"

	"github.com/bnema/procure-cli/internal/domain"
)

// sessionRecord is the on-disk TOML shape of the session. Kept separate
// from the domain type so the persisted layout can evolve independently.
type sessionRecord struct {
	AccessToken  string       `toml:"access_token"`
	RefreshToken string       `toml:"refresh_token,omitempty"`
	ExpiresAt    time.Time    `toml:"expires_at"`
	Claims       claimsRecord `toml:"claims"`
}

type claimsRecord struct {
	Subject     string   `toml:"subject"`
	Email       string   `toml:"email,omitempty"`
	Roles       []string `toml:"roles,omitempty"`
	Kind        string   `toml:"kind,omitempty"`
	Permissions []string `toml:"permissions,omitempty"`
}

func recordFromSession(session domain.Session) sessionRecord {
	return sessionRecord{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		Claims: claimsRecord{
			Subject:     session.Claims.Subject,
			Email:       session.Claims.Email,
			Roles:       session.Claims.Roles,
			Kind:        string(session.Claims.Kind),
			Permissions: session.Claims.Permissions,
		},
	}
}

func (r sessionRecord) toSession() domain.Session {
	return domain.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		Claims: domain.Claims{
			Subject:     r.Claims.Subject,
			Email:       r.Claims.Email,
			Roles:       r.Claims.Roles,
			Kind:        domain.LoginKind(r.Claims.Kind),
			Permissions: r.Claims.Permissions,
		},
	}
}
