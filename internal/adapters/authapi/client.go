// Package authapi implements the client side of the platform's credential
// issuance endpoints: the login exchange and the refresh-token exchange.
// Both are deliberately plain, unauthenticated HTTP calls; routing them
// through the request gateway would recurse into the renewal path.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/procure-cli/internal/domain"
)

const (
	defaultLoginPath   = "/auth/login"
	defaultRenewPath   = "/auth/refresh-token"
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 30 * time.Second
)

// ErrRenewalRejected means the backend refused the refresh token. The
// session cannot self-renew anymore; only a new login helps. Transport
// failures are never wrapped in this error.
var ErrRenewalRejected = errors.New("renewal rejected by backend")

type API struct {
	BaseURL   string
	LoginPath string
	RenewPath string
}

type Client struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

type Credentials struct {
	Email    string
	Password string
}

// TokenPair mirrors the backend's token response. A missing rotated
// refresh token means the previous one stays valid for further renewals.
type TokenPair struct {
	AccessToken  string `json:"accesstoken"`
	RefreshToken string `json:"refreshtoken,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type renewRequest struct {
	RefreshToken string `json:"refreshtoken"`
}

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Login exchanges user credentials for a fresh session. The returned
// session carries the claims decoded from the access token and is
// guaranteed valid at the moment of return.
func (c Client) Login(ctx context.Context, creds Credentials) (domain.Session, error) {
	if strings.TrimSpace(creds.Email) == "" {
		return domain.Session{}, errors.New("email is required")
	}
	if creds.Password == "" {
		return domain.Session{}, errors.New("password is required")
	}

	pair, err := c.exchange(ctx, c.loginPath(), loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return domain.Session{}, fmt.Errorf("login: %w", err)
	}

	session, err := SessionFromTokens(pair.AccessToken, pair.RefreshToken, time.Now())
	if err != nil {
		return domain.Session{}, fmt.Errorf("login: %w", err)
	}
	return session, nil
}

// Renew trades a refresh token for a new access token. A non-2xx answer
// is terminal and reported as ErrRenewalRejected; network failures come
// back unwrapped so callers can tell the two apart.
func (c Client) Renew(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, fmt.Errorf("renew: %w", domain.ErrSessionNotRenewable)
	}

	pair, err := c.exchange(ctx, c.renewPath(), renewRequest{RefreshToken: refreshToken})
	if err != nil {
		var rejected *statusError
		if errors.As(err, &rejected) {
			return TokenPair{}, fmt.Errorf("renew: %w: %s", ErrRenewalRejected, rejected.detail)
		}
		return TokenPair{}, fmt.Errorf("renew: %w", err)
	}
	return pair, nil
}

// statusError marks a definitive non-2xx backend answer, as opposed to a
// transport failure where no response arrived at all.
type statusError struct {
	status int
	detail string
}

func (e *statusError) Error() string { return e.detail }

func (c Client) exchange(ctx context.Context, path string, payload any) (TokenPair, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, path)
	if err != nil {
		return TokenPair{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TokenPair{}, fmt.Errorf("encode request: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("perform request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return TokenPair{}, &statusError{status: resp.StatusCode, detail: decodeAPIError(resp)}
	}

	var pair TokenPair
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(pair.AccessToken) == "" {
		return TokenPair{}, errors.New("token response missing access token")
	}
	return pair, nil
}

func (c Client) loginPath() string {
	if c.API.LoginPath != "" {
		return c.API.LoginPath
	}
	return defaultLoginPath
}

func (c Client) renewPath() string {
	if c.API.RenewPath != "" {
		return c.API.RenewPath
	}
	return defaultRenewPath
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultHTTPTimeout
	}
	return context.WithTimeout(ctx, requestTimeout)
}

func decodeAPIError(resp *http.Response) string {
	var apiErr apiErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&apiErr); err != nil {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	if apiErr.Error == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	if apiErr.Message != "" {
		return apiErr.Error + ": " + apiErr.Message
	}
	return apiErr.Error
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	// Join by concatenation so a base url with a path prefix keeps it.
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(parsed.String(), "/") + path, nil
}
