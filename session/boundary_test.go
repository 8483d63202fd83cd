package session_test

import (
	"context"
	"testing"

	"github.com/markhive/go-auth/session"
	"github.com/markhive/go-auth/tokenstore"
	"github.com/stretchr/testify/require"
)

func newBoundary(t *testing.T, svc *fakeAuthService) (*session.Boundary, *tokenstore.Store) {
	t.Helper()

	ctrl, store := newController(t, svc)
	boundary, err := session.NewBoundary(ctrl)
	require.NoError(t, err)
	return boundary, store
}

func TestNewBoundary_RequiresController(t *testing.T) {
	_, err := session.NewBoundary(nil)
	require.Error(t, err)
}

func TestGate_WaitsWhileLoading(t *testing.T) {
	boundary, _ := newBoundary(t, &fakeAuthService{})

	// Before Initialize resolves, protected views must not decide.
	require.Equal(t, session.DecisionWait, boundary.Gate())
}

func TestGate_RedirectsWhenUnauthenticated(t *testing.T) {
	boundary, _ := newBoundary(t, &fakeAuthService{})

	boundary.Initialize(context.Background())

	require.Equal(t, session.DecisionRedirectToLogin, boundary.Gate())
	require.Nil(t, boundary.CurrentUser())
}

func TestGate_AllowsWhenAuthenticated(t *testing.T) {
	svc := &fakeAuthService{user: testUser()}
	boundary, store := newBoundary(t, svc)
	require.NoError(t, store.SetTokens(validPair(t)))

	boundary.Initialize(context.Background())

	require.Equal(t, session.DecisionAllow, boundary.Gate())
	require.Equal(t, "user-1", boundary.CurrentUser().ID)
}

func TestBoundary_LogoutRedirects(t *testing.T) {
	svc := &fakeAuthService{user: testUser()}
	boundary, store := newBoundary(t, svc)
	require.NoError(t, store.SetTokens(validPair(t)))
	boundary.Initialize(context.Background())
	require.Equal(t, session.DecisionAllow, boundary.Gate())

	boundary.Logout(context.Background())

	require.Equal(t, session.DecisionRedirectToLogin, boundary.Gate())
}

func TestBoundary_FullLoginRoundTrip(t *testing.T) {
	svc := &fakeAuthService{user: testUser(), pair: validPair(t)}
	boundary, _ := newBoundary(t, svc)
	boundary.Initialize(context.Background())

	authURL, err := boundary.Login(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, authURL)
	require.Equal(t, session.DecisionWait, boundary.Gate())

	require.NoError(t, boundary.HandleCallback(context.Background(), "code-1", "state-1"))
	require.Equal(t, session.DecisionAllow, boundary.Gate())
}
