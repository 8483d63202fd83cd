package token_test

import (
	"testing"
	"time"

	"github.com/markhive/go-auth/token"
	tokenrepofake "github.com/markhive/go-auth/token/repofake"
	"github.com/markhive/go-auth/users"
	fakeuserrepo "github.com/markhive/go-auth/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr     = "test-signing-secret"
	issuer        = "http://localhost:8080"
	testUserID    = "user-1"
	testUserEmail = "john.doe@example.com"
)

// testFixture holds all test dependencies
type testFixture struct {
	userRepo    users.UserRepo
	refreshRepo *tokenrepofake.FakeRefreshTokenRepo
	manager     *token.Manager
}

func setupTestFixture(t *testing.T, options ...token.ManagerOption) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	rr := tokenrepofake.NewFakeRefreshTokenRepo()

	options = append([]token.ManagerOption{token.WithIssuer(issuer)}, options...)
	m, err := token.New(rr, ur, secretStr, options...)
	require.NoError(t, err)

	return &testFixture{
		userRepo:    ur,
		refreshRepo: rr,
		manager:     m,
	}
}

func (f *testFixture) createTestUser(t *testing.T, active bool) *users.User {
	t.Helper()

	user := &users.User{
		ID:       testUserID,
		Email:    testUserEmail,
		Name:     "John Doe",
		Role:     users.RoleUser,
		IsActive: active,
	}
	require.NoError(t, f.userRepo.Upsert(user))
	return user
}

func TestNew_RequiresDependencies(t *testing.T) {
	ur := fakeuserrepo.NewFakeUserRepo()
	rr := tokenrepofake.NewFakeRefreshTokenRepo()

	_, err := token.New(nil, ur, secretStr)
	require.Error(t, err)

	_, err = token.New(rr, nil, secretStr)
	require.Error(t, err)

	_, err = token.New(rr, ur, "  ")
	require.Error(t, err)
}

func TestGenerateTokenPair_IssuesVerifiablePair(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t, true)

	pair, err := f.manager.GenerateTokenPair(user)

	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, token.BearerTokenType, pair.TokenType)
	require.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	claims, err := f.manager.Verify(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	require.Equal(t, testUserID, claims.UserID)
	require.Equal(t, testUserEmail, claims.Email)

	// The refresh token's jti is recorded so it can be rotated later.
	require.Equal(t, 1, f.refreshRepo.Count())
}

func TestVerify_RejectsWrongTokenType(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t, true))
	require.NoError(t, err)

	_, err = f.manager.Verify(pair.AccessToken, token.TypeRefresh)
	require.ErrorIs(t, err, token.InvalidTokenTypeErr)

	_, err = f.manager.Verify(pair.RefreshToken, token.TypeAccess)
	require.ErrorIs(t, err, token.InvalidTokenTypeErr)
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	f := setupTestFixture(t, token.WithNowFunc(func() time.Time { return issuedAt }))
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t, true))
	require.NoError(t, err)

	// A second manager sharing the secret but running on real time sees the
	// 15 minute access token as expired.
	current, err := token.New(f.refreshRepo, f.userRepo, secretStr, token.WithIssuer(issuer))
	require.NoError(t, err)

	_, err = current.Verify(pair.AccessToken, token.TypeAccess)
	require.ErrorIs(t, err, token.InvalidTokenErr)
}

func TestVerify_RejectsForeignSignature(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t, true))
	require.NoError(t, err)

	other, err := token.New(f.refreshRepo, f.userRepo, "a-different-secret")
	require.NoError(t, err)

	_, err = other.Verify(pair.AccessToken, token.TypeAccess)
	require.ErrorIs(t, err, token.InvalidTokenErr)
}

func TestRefresh_RotatesSingleUseToken(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t, true))
	require.NoError(t, err)

	newPair, err := f.manager.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	_, err = f.manager.Verify(newPair.AccessToken, token.TypeAccess)
	require.NoError(t, err)

	// Replaying the consumed refresh token must fail.
	_, err = f.manager.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, token.InvalidRefreshTokenErr)
}

func TestRefresh_RejectsInactiveUser(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t, true)
	pair, err := f.manager.GenerateTokenPair(user)
	require.NoError(t, err)

	require.NoError(t, f.userRepo.SetActive(user.Email, false))

	_, err = f.manager.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, token.InvalidRefreshTokenErr)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t, true))
	require.NoError(t, err)

	_, err = f.manager.Refresh(pair.AccessToken)
	require.ErrorIs(t, err, token.InvalidRefreshTokenErr)
}

func TestRevokeUserRefreshTokens_InvalidatesAllSessions(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t, true)

	first, err := f.manager.GenerateTokenPair(user)
	require.NoError(t, err)
	second, err := f.manager.GenerateTokenPair(user)
	require.NoError(t, err)
	require.Equal(t, 2, f.refreshRepo.Count())

	require.NoError(t, f.manager.RevokeUserRefreshTokens(user.ID))
	require.Equal(t, 0, f.refreshRepo.Count())

	_, err = f.manager.Refresh(first.RefreshToken)
	require.ErrorIs(t, err, token.InvalidRefreshTokenErr)
	_, err = f.manager.Refresh(second.RefreshToken)
	require.ErrorIs(t, err, token.InvalidRefreshTokenErr)
}
