package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/procure-cli/internal/application"
	"github.com/bnema/procure-cli/internal/domain"
)

var renderNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRenderAnonymous(t *testing.T) {
	t.Parallel()

	out, err := Render(View{State: application.StateAnonymous}, RenderOptions{Now: renderNow})
	require.NoError(t, err)

	assert.Contains(t, out, "anonymous")
	assert.Contains(t, out, "procure login")
	assert.NotContains(t, out, "expires")
}

func TestRenderAuthenticated(t *testing.T) {
	t.Parallel()

	session := &domain.Session{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    renderNow.Add(59 * time.Minute),
		Claims: domain.Claims{
			Subject:     "user-42",
			Email:       "buyer@acme.example",
			Kind:        domain.LoginKindMember,
			Roles:       []string{"purchasing", "approver"},
			Permissions: []string{"REQUISITION:CREATE", "RFQ:READ"},
		},
	}

	out, err := Render(ViewFromSession(application.StateAuthenticated, session), RenderOptions{Now: renderNow})
	require.NoError(t, err)

	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "buyer@acme.example (organization member)")
	assert.Contains(t, out, "purchasing, approver")
	assert.Contains(t, out, "in 59m")
	assert.Contains(t, out, "renewable")
	assert.Contains(t, out, "REQUISITION:CREATE")
}

func TestRenderWarningSuggestsRenewal(t *testing.T) {
	t.Parallel()

	session := &domain.Session{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    renderNow.Add(90 * time.Second),
		Claims:       domain.Claims{Email: "vendor@supplies.example", Kind: domain.LoginKindSupplier},
	}

	out, err := Render(ViewFromSession(application.StateWarning, session), RenderOptions{Now: renderNow})
	require.NoError(t, err)

	assert.Contains(t, out, "expiring soon")
	assert.Contains(t, out, "external supplier")
	assert.Contains(t, out, "procure renew")
}

func TestRenderWarningWithoutRenewalCredential(t *testing.T) {
	t.Parallel()

	session := &domain.Session{
		AccessToken: "tok",
		ExpiresAt:   renderNow.Add(time.Minute),
		Claims:      domain.Claims{Email: "buyer@acme.example", Kind: domain.LoginKindMember},
	}

	out, err := Render(ViewFromSession(application.StateWarning, session), RenderOptions{Now: renderNow})
	require.NoError(t, err)

	assert.Contains(t, out, "cannot renew")
	assert.Contains(t, out, "not renewable")
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "hours and minutes", in: 2*time.Hour + 5*time.Minute, want: "2h05m"},
		{name: "whole hours", in: 3 * time.Hour, want: "3h"},
		{name: "minutes", in: 45 * time.Minute, want: "45m"},
		{name: "seconds", in: 30 * time.Second, want: "30s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatRemaining(tc.in))
		})
	}
}
