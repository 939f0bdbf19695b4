// Package gateway turns business-level request intents into credentialed
// HTTP exchanges. It injects the bearer token from the credential store,
// detects authorization failures, renews the session at most once per
// failure with a single-flight guard, and replays the original request
// exactly once against the fresh token.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bnema/procure-cli/internal/adapters/authapi"
	"github.com/bnema/procure-cli/internal/domain"
	"github.com/bnema/procure-cli/internal/ports"
)

const (
	defaultUserAgent = "procure-cli"
	renewGroupKey    = "renew"
	requestIDHeader  = "X-Request-Id"
)

// Request is an outbound business call. The body is held as bytes so the
// call can be replayed after a renewal.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Header      http.Header
	// SkipAuth sends the request without a bearer token and excludes it
	// from the renewal path entirely.
	SkipAuth bool
}

// RenewalEvent reports the outcome of one renewal exchange to
// subscribers. Exactly one of Session and Err is set.
type RenewalEvent struct {
	Session *domain.Session
	Err     error
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      ports.CredentialStore
	Auth       authapi.Client
	Logger     zerolog.Logger
	Clock      ports.Clock
	UserAgent  string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      ports.CredentialStore
	auth       authapi.Client
	log        zerolog.Logger
	clock      ports.Clock
	userAgent  string

	renewGroup singleflight.Group

	mu   sync.Mutex
	subs []func(RenewalEvent)
}

func New(cfg Config) (*Client, error) {
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, errors.New("credential store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		store:      cfg.Store,
		auth:       cfg.Auth,
		log:        cfg.Logger,
		clock:      clock,
		userAgent:  userAgent,
	}, nil
}

// OnRenewal registers fn for every renewal outcome, success or failure.
// The session lifecycle manager uses this to keep in-memory state in step
// with the durable store.
func (c *Client) OnRenewal(fn func(RenewalEvent)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Do sends the request with the current access token attached. A 401 on a
// credentialed call triggers one renewal and one replay; every other
// status, and every transport error, passes through untouched.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	resp, carried, err := c.attempt(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.SkipAuth || !carried {
		return resp, nil
	}

	session, err := c.Renew(ctx)
	if err != nil {
		// The gateway reports, it does not evict: surface the original
		// 401 and let the lifecycle manager decide the logout policy.
		c.log.Debug().Err(err).Str("path", req.Path).Msg("renewal failed, surfacing original 401")
		return resp, nil
	}

	_ = resp.Body.Close()
	retry, _, err := c.attempt(ctx, req, session.AccessToken)
	if err != nil {
		return nil, err
	}
	// A second 401 is not retried again.
	return retry, nil
}

// Renew performs the refresh-token exchange, persists the new session,
// and publishes the outcome. Concurrent callers converge on one in-flight
// exchange and share its result.
func (c *Client) Renew(ctx context.Context) (*domain.Session, error) {
	result, err, shared := c.renewGroup.Do(renewGroupKey, func() (any, error) {
		session, err := c.renewOnce(ctx)
		if err != nil {
			c.publish(RenewalEvent{Err: err})
			return nil, err
		}
		c.publish(RenewalEvent{Session: session})
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug().Msg("reused in-flight renewal result")
	}
	return result.(*domain.Session), nil
}

func (c *Client) renewOnce(ctx context.Context) (*domain.Session, error) {
	// Always renew against the store's current state, not a captured
	// copy; another process may have rotated the tokens already.
	current, err := c.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session before renewal: %w", err)
	}
	if current == nil {
		return nil, domain.ErrNoSession
	}
	if !current.CanRenew() {
		return nil, domain.ErrSessionNotRenewable
	}

	pair, err := c.auth.Renew(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, authapi.ErrRenewalRejected) {
			// Normalized for subscribers: a rejected refresh token means
			// the session is over, distinct from a transport hiccup.
			return nil, fmt.Errorf("%w: %w", domain.ErrSessionExpired, err)
		}
		return nil, err
	}

	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		// No rotation offered: the previous refresh token stays valid.
		refreshToken = current.RefreshToken
	}

	session, err := authapi.SessionFromTokens(pair.AccessToken, refreshToken, c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("adopt renewed session: %w", err)
	}
	if err := c.store.Write(ctx, session); err != nil {
		return nil, fmt.Errorf("persist renewed session: %w", err)
	}

	c.log.Info().Time("expires_at", session.ExpiresAt).Msg("session renewed")
	return &session, nil
}

// attempt issues the request once. It reports whether a bearer token was
// attached; a 401 on a call that never carried one is not renewable.
func (c *Client) attempt(ctx context.Context, req Request, overrideToken string) (*http.Response, bool, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, false, err
	}

	carried := false
	if !req.SkipAuth {
		token := overrideToken
		if token == "" {
			token = c.currentAccessToken(ctx)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
			carried = true
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, carried, fmt.Errorf("send %s %s: %w", req.Method, req.Path, err)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Msg("request completed")
	return resp, carried, nil
}

// currentAccessToken reads the store's access token. An absent or
// unreadable session is non-fatal here: the request goes out bare and the
// backend answers with whatever status it sees fit.
func (c *Client) currentAccessToken(ctx context.Context) string {
	session, err := c.store.Read(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("read session for request, proceeding unauthenticated")
		return ""
	}
	if session == nil {
		return ""
	}
	return session.AccessToken
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	endpoint := c.baseURL + normalizePath(req.Path)
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body *bytes.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", method, req.Path, err)
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if len(req.Body) > 0 {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	return httpReq, nil
}

func (c *Client) publish(event RenewalEvent) {
	c.mu.Lock()
	subs := make([]func(RenewalEvent), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("base url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("base url must use http or https")
	}
	if u.Host == "" {
		return "", errors.New("base url host is required")
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
