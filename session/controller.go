// Package session owns the client-side authenticated-session lifecycle: the
// Unauthenticated/Loading/Authenticated state machine, the OAuth redirect
// round trip (start login, resume after callback), and the refresh policy.
package session

import (
	"context"
	"sync"

	"github.com/markhive/go-auth/authclient"
	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var LoginInProgressErr = errors.New("login already in progress")

// State is the session-state variant exposed to the application. Exactly one
// holds at any time.
type State int

const (
	// StateUnauthenticated means no user and not loading.
	StateUnauthenticated State = iota

	// StateLoading is transient: startup, a login redirect in flight, or a
	// refresh in progress.
	StateLoading

	// StateAuthenticated means a user is signed in. Terminal until token
	// expiry or explicit logout.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session state. User is non-nil only
// when State is StateAuthenticated, and is always replaced wholesale.
type Snapshot struct {
	State State
	User  *users.User
}

// AuthService is the slice of authclient.Client the controller needs.
type AuthService interface {
	GetGoogleAuthURL(ctx context.Context) (*authclient.AuthURLResponse, error)
	HandleGoogleCallback(ctx context.Context, code, state string) (*authclient.CallbackResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*token.TokenPair, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*users.User, error)
	Logout(ctx context.Context, accessToken string) error
}

var _ AuthService = (*authclient.Client)(nil)

// TokenStore is the slice of tokenstore.Store the controller needs.
type TokenStore interface {
	SetTokens(pair *token.TokenPair) error
	GetAccessToken() string
	GetRefreshToken() string
	IsTokenExpired(rawToken string) bool
	ClearTokens()
}

// Controller drives the session state machine. It is the single writer of
// the token store and the only owner of the exposed state variant.
//
// Every transition carries a generation number; a transition that completes
// after a newer one has started discards its result, so a stale response can
// never overwrite fresher state.
type Controller struct {
	svc    AuthService
	tokens TokenStore
	log    zerolog.Logger

	mu            sync.Mutex
	state         State
	user          *users.User
	gen           uint64
	loginInFlight bool
	listeners     []func(Snapshot)

	refreshGroup singleflight.Group
}

type ControllerOption func(*Controller)

func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a session controller in StateLoading; callers run
// Initialize to resolve the real state.
func NewController(svc AuthService, tokens TokenStore, options ...ControllerOption) (*Controller, error) {
	if svc == nil {
		return nil, errors.New("[session.NewController] auth service is required")
	}
	if tokens == nil {
		return nil, errors.New("[session.NewController] token store is required")
	}

	c := &Controller{
		svc:    svc,
		tokens: tokens,
		log:    zerolog.Nop(),
		state:  StateLoading,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Snapshot returns the current state variant.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, User: c.user}
}

// OnChange registers a listener invoked after every committed transition.
// Listeners are called outside the controller lock and may call back in.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Initialize derives the session state from whatever tokens are stored.
// With no stored tokens it resolves to Unauthenticated without any network
// call. Failures are converted into Unauthenticated with cleared tokens and
// a logged diagnostic; Initialize itself never returns an error.
func (c *Controller) Initialize(ctx context.Context) {
	g := c.begin()
	if err := c.deriveState(ctx, g); err != nil {
		c.log.Warn().Err(err).Msg("Session initialization failed; treating as signed out")
	}
}

// Login starts the OAuth redirect flow and returns the authorization URL the
// caller must navigate to. The flow suspends there: resolution happens via
// HandleCallback once the identity provider redirects back. A Login while
// another is in flight fails with LoginInProgressErr without issuing a
// second authorization-URL request. A request failure reverts the state to
// its prior value and surfaces the error.
func (c *Controller) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.loginInFlight {
		c.mu.Unlock()
		return "", LoginInProgressErr
	}
	c.loginInFlight = true
	prevState, prevUser := c.state, c.user
	c.gen++
	g := c.gen
	c.state = StateLoading
	notify := c.snapshotListenersLocked()
	c.mu.Unlock()
	notify()

	resp, err := c.svc.GetGoogleAuthURL(ctx)
	if err != nil {
		c.mu.Lock()
		c.loginInFlight = false
		var revert func()
		if g == c.gen {
			c.state, c.user = prevState, prevUser
			revert = c.snapshotListenersLocked()
		}
		c.mu.Unlock()
		if revert != nil {
			revert()
		}
		return "", errors.Wrap(err, "[Controller.Login] authorization URL request")
	}

	return resp.AuthorizationURL, nil
}

// HandleCallback resumes the flow after the identity-provider redirect.
// Missing code or state fails with MalformedCallbackErr before any network
// call. On a successful exchange the tokens are persisted and the session
// state is re-derived through the same path Initialize uses. Errors surface
// to the caller; the session ends Unauthenticated on any failure.
//
// Re-invocation after the session is already authenticated is a no-op, since
// authorization codes are single-use.
func (c *Controller) HandleCallback(ctx context.Context, code, state string) error {
	c.mu.Lock()
	if c.state == StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if code == "" || state == "" {
		c.endLogin()
		c.transition(StateUnauthenticated, nil)
		return authclient.MalformedCallbackErr
	}

	g := c.begin()

	resp, err := c.svc.HandleGoogleCallback(ctx, code, state)
	if err != nil {
		c.endLogin()
		c.commit(g, StateUnauthenticated, nil)
		return errors.Wrap(err, "[Controller.HandleCallback] code exchange")
	}

	if err := c.tokens.SetTokens(resp.Tokens); err != nil {
		c.endLogin()
		c.commit(g, StateUnauthenticated, nil)
		return errors.Wrap(err, "[Controller.HandleCallback] persist tokens")
	}

	c.endLogin()
	return c.deriveState(ctx, g)
}

// Refresh exchanges the stored refresh token for a new pair. At most one
// refresh is in flight at a time; concurrent callers share the result of the
// single attempt. A refresh is never retried: failure clears both tokens and
// transitions the session to Unauthenticated.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.refresh(ctx); err != nil {
		c.transition(StateUnauthenticated, nil)
		return err
	}
	return nil
}

// Logout terminates the session. The server-side call is best effort; local
// state always ends Unauthenticated with cleared tokens, so Logout cannot
// fail from the caller's perspective.
func (c *Controller) Logout(ctx context.Context) {
	if accessToken := c.tokens.GetAccessToken(); accessToken != "" {
		if err := c.svc.Logout(ctx, accessToken); err != nil {
			c.swallowLogoutError(err)
		}
	}
	c.tokens.ClearTokens()
	c.endLogin()
	c.transition(StateUnauthenticated, nil)
}

// swallowLogoutError is the deliberate ignore-but-log path for server-side
// logout failures: local session termination must never be blocked by
// backend reachability.
func (c *Controller) swallowLogoutError(err error) {
	c.log.Warn().Err(err).Msg("Server-side logout failed; terminating local session anyway")
}

// deriveState is the canonical state derivation shared by Initialize and
// HandleCallback: validate the stored access token (refreshing once if it is
// expired), then fetch the current user. Any failure clears the tokens and
// resolves Unauthenticated.
func (c *Controller) deriveState(ctx context.Context, g uint64) error {
	accessToken := c.tokens.GetAccessToken()
	if accessToken == "" {
		c.commit(g, StateUnauthenticated, nil)
		return nil
	}

	if c.tokens.IsTokenExpired(accessToken) {
		if err := c.refresh(ctx); err != nil {
			c.commit(g, StateUnauthenticated, nil)
			return errors.Wrap(err, "[Controller.deriveState] refresh")
		}
		accessToken = c.tokens.GetAccessToken()
	}

	user, err := c.svc.GetCurrentUser(ctx, accessToken)
	if err != nil {
		c.tokens.ClearTokens()
		c.commit(g, StateUnauthenticated, nil)
		return errors.Wrap(err, "[Controller.deriveState] current user")
	}

	c.commit(g, StateAuthenticated, user)
	return nil
}

// refresh performs the serialized refresh without touching the exposed
// state; callers own the resulting transition. No stored refresh token is
// treated as an invalid grant without contacting the backend.
func (c *Controller) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		refreshToken := c.tokens.GetRefreshToken()
		if refreshToken == "" {
			return nil, errors.Wrap(authclient.InvalidGrantErr, "no refresh token stored")
		}

		pair, err := c.svc.RefreshToken(ctx, refreshToken)
		if err != nil {
			c.tokens.ClearTokens()
			return nil, err
		}
		if err := c.tokens.SetTokens(pair); err != nil {
			c.tokens.ClearTokens()
			return nil, err
		}
		return nil, nil
	})
	return err
}

// begin starts a transition: bumps the generation and enters StateLoading.
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	c.gen++
	g := c.gen
	c.state = StateLoading
	c.user = nil
	notify := c.snapshotListenersLocked()
	c.mu.Unlock()
	notify()
	return g
}

// commit applies a transition's result unless a newer transition has begun
// since (last transition wins). Reports whether the result was applied.
func (c *Controller) commit(g uint64, state State, user *users.User) bool {
	c.mu.Lock()
	if g != c.gen {
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", g).Msg("Discarding stale session transition")
		return false
	}
	c.state = state
	c.user = user
	notify := c.snapshotListenersLocked()
	c.mu.Unlock()
	notify()
	return true
}

// transition applies a new state immediately under a fresh generation.
func (c *Controller) transition(state State, user *users.User) {
	c.mu.Lock()
	c.gen++
	c.state = state
	c.user = user
	notify := c.snapshotListenersLocked()
	c.mu.Unlock()
	notify()
}

func (c *Controller) endLogin() {
	c.mu.Lock()
	c.loginInFlight = false
	c.mu.Unlock()
}

// snapshotListenersLocked captures the snapshot and listener list so the
// caller can notify after releasing the lock.
func (c *Controller) snapshotListenersLocked() func() {
	snap := Snapshot{State: c.state, User: c.user}
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	return func() {
		for _, fn := range listeners {
			fn(snap)
		}
	}
}
