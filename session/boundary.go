package session

import (
	"context"

	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
)

// Decision is the view-gating verdict for a protected view.
type Decision int

const (
	// DecisionWait means the session is still resolving: show neither the
	// protected content nor a redirect, avoiding a flash of
	// unauthenticated content during startup or refresh.
	DecisionWait Decision = iota

	// DecisionAllow means an authenticated user is present.
	DecisionAllow

	// DecisionRedirectToLogin means the session is resolved and anonymous.
	DecisionRedirectToLogin
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionAllow:
		return "allow"
	case DecisionRedirectToLogin:
		return "redirect_to_login"
	default:
		return "unknown"
	}
}

// Boundary is the presentation adapter over the session controller: it is
// the one object handed to application components that need auth state or
// auth actions. A single process-wide instance is created at application
// start; there is no hidden global.
type Boundary struct {
	ctrl *Controller
}

func NewBoundary(ctrl *Controller) (*Boundary, error) {
	if ctrl == nil {
		return nil, errors.New("[session.NewBoundary] controller is required")
	}
	return &Boundary{ctrl: ctrl}, nil
}

// Gate decides what a protected view should do right now.
func (b *Boundary) Gate() Decision {
	switch b.ctrl.Snapshot().State {
	case StateAuthenticated:
		return DecisionAllow
	case StateLoading:
		return DecisionWait
	default:
		return DecisionRedirectToLogin
	}
}

func (b *Boundary) Snapshot() Snapshot {
	return b.ctrl.Snapshot()
}

// CurrentUser returns the authenticated user, or nil when anonymous or
// still loading.
func (b *Boundary) CurrentUser() *users.User {
	return b.ctrl.Snapshot().User
}

func (b *Boundary) Initialize(ctx context.Context) {
	b.ctrl.Initialize(ctx)
}

func (b *Boundary) Login(ctx context.Context) (string, error) {
	return b.ctrl.Login(ctx)
}

func (b *Boundary) HandleCallback(ctx context.Context, code, state string) error {
	return b.ctrl.HandleCallback(ctx, code, state)
}

func (b *Boundary) Refresh(ctx context.Context) error {
	return b.ctrl.Refresh(ctx)
}

func (b *Boundary) Logout(ctx context.Context) {
	b.ctrl.Logout(ctx)
}

func (b *Boundary) OnChange(fn func(Snapshot)) {
	b.ctrl.OnChange(fn)
}
