package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/procure-cli/internal/domain"
	"github.com/bnema/procure-cli/internal/ports"
)

const (
	DefaultWarnWindow    = 2 * time.Minute
	DefaultCheckInterval = 5 * time.Second
)

// SessionState is the lifecycle state this process reports to its UI.
type SessionState string

const (
	StateAnonymous     SessionState = "anonymous"
	StateAuthenticated SessionState = "authenticated"
	// StateWarning refines Authenticated when expiry is inside the warn
	// window: the user should renew now or expect a forced logout.
	StateWarning SessionState = "warning"
)

// ChangeReason explains a state transition to subscribers, so the UI can
// tell a voluntary logout from a "session expired" eviction.
type ChangeReason string

const (
	ReasonLogin          ChangeReason = "login"
	ReasonLogout         ChangeReason = "logout"
	ReasonRenewed        ChangeReason = "renewed"
	ReasonWarning        ChangeReason = "warning"
	ReasonExpired        ChangeReason = "expired"
	ReasonRenewalFailed  ChangeReason = "renewal_failed"
	ReasonExternalUpdate ChangeReason = "external_update"
	ReasonExternalLogout ChangeReason = "external_logout"
	ReasonStartup        ChangeReason = "startup"
)

// SessionChange is delivered to OnChange subscribers on every real
// transition. Re-entering the current state is not a change.
type SessionChange struct {
	State   SessionState
	Session *domain.Session
	Reason  ChangeReason
}

// Renewer mints a fresh session from the stored refresh token. The
// request gateway implements it with a single-flight guard.
type Renewer interface {
	Renew(ctx context.Context) (*domain.Session, error)
}

type SessionManagerConfig struct {
	Store         ports.CredentialStore
	Feed          ports.CredentialFeed
	Renewer       Renewer
	Clock         ports.Clock
	Logger        zerolog.Logger
	WarnWindow    time.Duration
	CheckInterval time.Duration
}

// SessionManager owns the in-memory session every other component reads.
// Three independent event sources feed one transition table: the periodic
// expiry check, the store's external-change feed, and the gateway's
// renewal outcomes. Each source is idempotent against the current state.
type SessionManager struct {
	store         ports.CredentialStore
	feed          ports.CredentialFeed
	renewer       Renewer
	clock         ports.Clock
	log           zerolog.Logger
	warnWindow    time.Duration
	checkInterval time.Duration

	mu      sync.Mutex
	session *domain.Session
	state   SessionState
	subs    []func(SessionChange)
}

func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Store == nil {
		return nil, errors.New("credential store is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	warnWindow := cfg.WarnWindow
	if warnWindow <= 0 {
		warnWindow = DefaultWarnWindow
	}
	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	return &SessionManager{
		store:         cfg.Store,
		feed:          cfg.Feed,
		renewer:       cfg.Renewer,
		clock:         clock,
		log:           cfg.Logger,
		warnWindow:    warnWindow,
		checkInterval: checkInterval,
		state:         StateAnonymous,
	}, nil
}

// Start adopts any valid persisted session, begins the periodic expiry
// check, and subscribes to external store changes. Everything stops when
// ctx is cancelled.
func (m *SessionManager) Start(ctx context.Context) error {
	session, err := m.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read persisted session: %w", err)
	}
	if session != nil {
		if validateErr := session.Validate(m.clock.Now()); validateErr == nil {
			m.adopt(session, ReasonStartup)
		} else {
			m.log.Debug().Err(validateErr).Msg("ignoring unusable persisted session at startup")
		}
	}

	if m.feed != nil {
		stop, err := m.feed.Watch(ctx, m.HandleExternalChange)
		if err != nil {
			return fmt.Errorf("watch credential store: %w", err)
		}
		go func() {
			<-ctx.Done()
			stop()
		}()
	}

	go m.checkLoop(ctx)
	return nil
}

// Login persists the freshly issued session and moves to Authenticated.
func (m *SessionManager) Login(ctx context.Context, session domain.Session) error {
	if err := session.Validate(m.clock.Now()); err != nil {
		return fmt.Errorf("adopt login session: %w", err)
	}
	if err := m.store.Write(ctx, session); err != nil {
		return fmt.Errorf("persist login session: %w", err)
	}
	m.adopt(&session, ReasonLogin)
	return nil
}

// Logout clears the durable record, which also notifies every other
// process, and moves to Anonymous.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	m.clear(ReasonLogout)
	return nil
}

// RenewNow renews on the user's behalf, typically from the Warning state.
// A terminal failure routes to Anonymous; a transport failure leaves the
// session as it was and is returned for the caller to retry.
func (m *SessionManager) RenewNow(ctx context.Context) error {
	if m.renewer == nil {
		return errors.New("no renewer configured")
	}

	session, err := m.renewer.Renew(ctx)
	if err != nil {
		m.HandleRenewalFailure(ctx, err)
		return fmt.Errorf("renew session: %w", err)
	}
	m.HandleRenewalSuccess(*session)
	return nil
}

// Session returns a copy of the current session, or nil when Anonymous.
func (m *SessionManager) Session() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers fn for every state transition.
func (m *SessionManager) OnChange(fn func(SessionChange)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// HandleRenewalSuccess adopts the session a renewal just persisted. Wired
// to the gateway's renewal events so transparent renewals update state
// without the manager initiating them.
func (m *SessionManager) HandleRenewalSuccess(session domain.Session) {
	m.adopt(&session, ReasonRenewed)
}

// HandleRenewalFailure applies the logout policy the gateway deliberately
// does not own: a terminal failure evicts the session with a distinct
// "session expired" reason, a transport failure changes nothing.
func (m *SessionManager) HandleRenewalFailure(ctx context.Context, err error) {
	if !isTerminalRenewalError(err) {
		m.log.Warn().Err(err).Msg("renewal failed transiently, keeping session")
		return
	}

	if clearErr := m.store.Clear(ctx); clearErr != nil {
		m.log.Warn().Err(clearErr).Msg("clear session after failed renewal")
	}
	m.clear(ReasonRenewalFailed)
}

// HandleExternalChange reacts to another process writing or clearing the
// store: adopt its session without re-login, or log out locally.
func (m *SessionManager) HandleExternalChange(session *domain.Session) {
	if session == nil {
		m.clear(ReasonExternalLogout)
		return
	}
	if err := session.Validate(m.clock.Now()); err != nil {
		m.log.Debug().Err(err).Msg("ignoring unusable session from another process")
		m.clear(ReasonExternalLogout)
		return
	}
	m.adopt(session, ReasonExternalUpdate)
}

// Check runs one pass of the expiry watchdog. Exposed so tests can drive
// the transition table deterministically; the periodic loop calls it on
// every tick.
func (m *SessionManager) Check(ctx context.Context) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return
	}

	now := m.clock.Now()
	switch {
	case session.Expired(now):
		// Hard expiry: forced logout, no grace period, no network call.
		// The durable record is destroyed only when nothing can renew
		// it; a renewable record is left for the gateway or another
		// process to refresh.
		if !session.CanRenew() {
			if err := m.store.Clear(ctx); err != nil {
				m.log.Warn().Err(err).Msg("clear expired session")
			}
		}
		m.clear(ReasonExpired)
	case session.ExpiringWithin(now, m.warnWindow):
		m.transition(StateWarning, session, ReasonWarning)
	default:
		// Re-entrant: renewal pushed expiry back out of the window.
		m.transition(StateAuthenticated, session, ReasonRenewed)
	}
}

func (m *SessionManager) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *SessionManager) adopt(session *domain.Session, reason ChangeReason) {
	state := StateAuthenticated
	if session.ExpiringWithin(m.clock.Now(), m.warnWindow) {
		state = StateWarning
	}
	m.transition(state, session, reason)
}

func (m *SessionManager) clear(reason ChangeReason) {
	m.transition(StateAnonymous, nil, reason)
}

// transition is the single place deciding whether an event changes
// anything. Re-delivering the state we are already in is a no-op, which
// is what makes every event source idempotent.
func (m *SessionManager) transition(state SessionState, session *domain.Session, reason ChangeReason) {
	m.mu.Lock()
	changed := m.state != state || sessionReplaced(m.session, session)
	if !changed {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.session = session
	subs := make([]func(SessionChange), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.log.Info().
		Str("state", string(state)).
		Str("reason", string(reason)).
		Msg("session state changed")

	change := SessionChange{State: state, Session: session, Reason: reason}
	for _, fn := range subs {
		fn(change)
	}
}

func sessionReplaced(current, next *domain.Session) bool {
	if current == nil || next == nil {
		return (current == nil) != (next == nil)
	}
	return current.AccessToken != next.AccessToken ||
		current.RefreshToken != next.RefreshToken ||
		!current.ExpiresAt.Equal(next.ExpiresAt)
}

func isTerminalRenewalError(err error) bool {
	return errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrSessionNotRenewable) ||
		errors.Is(err, domain.ErrNoSession)
}
