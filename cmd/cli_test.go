package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRequiresEmailFlag(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "login", "--password", "hunter2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"email\" not set")
}

func TestLoginRequiresPassword(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")
}

func TestStatusWithoutSessionIsAnonymous(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "anonymous")
	assert.Contains(t, stdout, "procure login")
}

func TestLoginThenStatusShowsAuthenticatedIdentity(t *testing.T) {
	server := newBackendFixture(t, time.Now().Add(time.Hour))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", server.URL)

	stdout, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed in as buyer@acme.example")

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "authenticated")
	assert.Contains(t, stdout, "buyer@acme.example (organization member)")
}

func TestStatusJSONOutput(t *testing.T) {
	server := newBackendFixture(t, time.Now().Add(time.Hour))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", server.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "status", "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"State\": \"authenticated\"")
	assert.Contains(t, stdout, "\"Email\": \"buyer@acme.example\"")
}

func TestLogoutClearsSharedSessionRecord(t *testing.T) {
	server := newBackendFixture(t, time.Now().Add(time.Hour))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", server.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out")

	_, statErr := os.Stat(filepath.Join(home, ".procure", "session.toml"))
	assert.True(t, os.IsNotExist(statErr))

	stdout, _, err = executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "anonymous")
}

func TestWhoamiWithoutSessionFails(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestWhoamiPrintsClaims(t *testing.T) {
	server := newBackendFixture(t, time.Now().Add(time.Hour))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", server.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "subject: user-42")
	assert.Contains(t, stdout, "email: buyer@acme.example")
	assert.Contains(t, stdout, "kind: member")
	assert.Contains(t, stdout, "roles: purchasing")
}

func TestRenewWithoutSessionFails(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "renew")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
}

func TestRequestSendsBearerToken(t *testing.T) {
	fixture := newBackendFixture(t, time.Now().Add(time.Hour))
	defer fixture.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", fixture.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "request", "/requisitions", "-q", "status=open")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"items"`)
	assert.Equal(t, int64(1), fixture.businessHits.Load())
}

func TestRequestRenewsExpiredBearerSilently(t *testing.T) {
	fixture := newBackendFixture(t, time.Now().Add(time.Hour))
	defer fixture.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", fixture.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	// Invalidate the issued access token server-side; the CLI should
	// renew once and replay without surfacing the rejection.
	fixture.revokeIssued()

	stdout, _, err := executeCLI(t, home, "request", "/requisitions")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"items"`)
	assert.Equal(t, int64(1), fixture.renewHits.Load())
}

func TestRequestFailureStatusSurfacesError(t *testing.T) {
	fixture := newBackendFixture(t, time.Now().Add(time.Hour))
	defer fixture.Close()

	home := t.TempDir()
	t.Setenv("PROCURE_API_BASE_URL", fixture.URL)

	_, _, err := executeCLI(t, home, "login", "--email", "buyer@acme.example", "--password", "hunter2")
	require.NoError(t, err)

	_, _, err = executeCLI(t, home, "request", "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestVersionPrintsBuildVersion(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "dev")
}

// backendFixture serves the auth endpoints plus a small business API on
// one listener, tracking which access tokens it currently honors.
type backendFixture struct {
	*httptest.Server

	t            *testing.T
	expiresAt    time.Time
	validTokens  atomic.Value // map[string]bool, replaced wholesale
	renewHits    atomic.Int64
	businessHits atomic.Int64
}

func newBackendFixture(t *testing.T, expiresAt time.Time) *backendFixture {
	t.Helper()

	fixture := &backendFixture{t: t, expiresAt: expiresAt}
	fixture.validTokens.Store(map[string]bool{})

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		token := fixture.issueToken()
		writeTokenPair(w, token, "refresh-1")
	})
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		fixture.renewHits.Add(1)
		token := fixture.issueToken()
		writeTokenPair(w, token, "refresh-2")
	})
	mux.HandleFunc("/requisitions", func(w http.ResponseWriter, r *http.Request) {
		fixture.businessHits.Add(1)
		token := bearerToken(r)
		if !fixture.currentTokens()[token] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"items":[{"id":"req-1","status":"open"}]}`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	fixture.Server = httptest.NewServer(mux)
	return fixture
}

func (f *backendFixture) issueToken() string {
	token := mintAccessToken(f.t, f.expiresAt)
	tokens := map[string]bool{token: true}
	f.validTokens.Store(tokens)
	return token
}

func (f *backendFixture) revokeIssued() {
	f.validTokens.Store(map[string]bool{})
}

func (f *backendFixture) currentTokens() map[string]bool {
	return f.validTokens.Load().(map[string]bool)
}

func writeTokenPair(w http.ResponseWriter, accessToken, refreshToken string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"accesstoken":%q,"refreshtoken":%q}`, accessToken, refreshToken)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) {
		return ""
	}
	return header[len(prefix):]
}

type cliClaims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Kind        string   `json:"kind"`
	Permissions []string `json:"permissions"`
	jwtlib.RegisteredClaims
}

func mintAccessToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	claims := cliClaims{
		Email:       "buyer@acme.example",
		Roles:       []string{"purchasing"},
		Kind:        "member",
		Permissions: []string{"REQUISITION:CREATE"},
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
