package authapi

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/bnema/procure-cli/internal/domain"
)

// accessClaims is the platform's access-token payload. The client decodes
// it without signature verification: only the backend holds the keys, and
// only the backend's acceptance of the token matters.
type accessClaims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Kind        string   `json:"kind"`
	Permissions []string `json:"permissions"`
	jwtlib.RegisteredClaims
}

// SessionFromTokens decodes the access token's claims and expiry into a
// Session. The session must be valid at adoption time; a token that is
// already expired is rejected here rather than persisted.
func SessionFromTokens(accessToken, refreshToken string, now time.Time) (domain.Session, error) {
	if strings.TrimSpace(accessToken) == "" {
		return domain.Session{}, domain.ErrMalformedSession
	}

	var claims accessClaims
	if _, _, err := jwtlib.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return domain.Session{}, fmt.Errorf("parse access token: %w: %w", domain.ErrMalformedSession, err)
	}
	if claims.ExpiresAt == nil {
		return domain.Session{}, fmt.Errorf("access token missing expiry claim: %w", domain.ErrMalformedSession)
	}

	session := domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
		Claims: domain.Claims{
			Subject:     claims.Subject,
			Email:       claims.Email,
			Roles:       claims.Roles,
			Kind:        domain.LoginKind(claims.Kind),
			Permissions: claims.Permissions,
		},
	}

	if err := session.Validate(now); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}
