package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionExpiryChecks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name           string
		expiresAt      time.Time
		wantExpired    bool
		wantInTwoMin   bool
	}{
		{name: "one hour out", expiresAt: now.Add(time.Hour), wantExpired: false, wantInTwoMin: false},
		{name: "ninety seconds out", expiresAt: now.Add(90 * time.Second), wantExpired: false, wantInTwoMin: true},
		{name: "exactly now", expiresAt: now, wantExpired: true, wantInTwoMin: true},
		{name: "in the past", expiresAt: now.Add(-time.Minute), wantExpired: true, wantInTwoMin: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			session := Session{AccessToken: "tok", ExpiresAt: tc.expiresAt}
			assert.Equal(t, tc.wantExpired, session.Expired(now))
			assert.Equal(t, tc.wantInTwoMin, session.ExpiringWithin(now, 2*time.Minute))
		})
	}
}

func TestSessionValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		session Session
		wantErr error
	}{
		{
			name:    "valid with refresh token",
			session: Session{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: now.Add(time.Hour)},
		},
		{
			name:    "valid without refresh token",
			session: Session{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)},
		},
		{
			name:    "missing access token",
			session: Session{ExpiresAt: now.Add(time.Hour)},
			wantErr: ErrMalformedSession,
		},
		{
			name:    "zero expiry",
			session: Session{AccessToken: "tok"},
			wantErr: ErrMalformedSession,
		},
		{
			name:    "expired but renewable",
			session: Session{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: now.Add(-time.Minute)},
			wantErr: ErrSessionExpired,
		},
		{
			name:    "expired and unrenewable",
			session: Session{AccessToken: "tok", ExpiresAt: now.Add(-time.Minute)},
			wantErr: ErrSessionNotRenewable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.session.Validate(now)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestClaimsHasPermission(t *testing.T) {
	t.Parallel()

	claims := Claims{
		Subject:     "user-1",
		Kind:        LoginKindMember,
		Permissions: []string{"REQUISITION:CREATE", "RFQ:READ", "PO:APPROVE"},
	}

	assert.True(t, claims.HasPermission("RFQ:READ"))
	assert.True(t, claims.HasPermission("rfq:read"))
	assert.False(t, claims.HasPermission("RFQ:WRITE"))
	assert.False(t, claims.HasPermission(""))
	assert.False(t, claims.HasPermission("   "))
}
