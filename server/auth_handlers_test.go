package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markhive/go-auth/googleauth"
	"github.com/markhive/go-auth/internal/config"
	"github.com/markhive/go-auth/server"
	"github.com/markhive/go-auth/token"
	tokenrepofake "github.com/markhive/go-auth/token/repofake"
	"github.com/markhive/go-auth/users"
	fakeuserrepo "github.com/markhive/go-auth/users/repofake"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	secretStr     = "test-signing-secret"
	testUserEmail = "john.doe@example.com"
	testPassword  = "Password123"
)

// fakeGoogle is a scriptable identity provider.
type fakeGoogle struct {
	authURLErr  error
	exchangeErr error
	identity    *googleauth.Identity
}

func (f *fakeGoogle) AuthorizationURL(_ context.Context) (string, string, error) {
	if f.authURLErr != nil {
		return "", "", f.authURLErr
	}
	return "https://accounts.google.com/o/oauth2/auth?state=abc", "abc", nil
}

func (f *fakeGoogle) Exchange(_ context.Context, code, state string) (*googleauth.Identity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.identity, nil
}

// testFixture holds all test dependencies
type testFixture struct {
	userRepo users.UserRepo
	manager  *token.Manager
	google   *fakeGoogle
	server   *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	m, err := token.New(tokenrepofake.NewFakeRefreshTokenRepo(), ur, secretStr)
	require.NoError(t, err)

	google := &fakeGoogle{identity: &googleauth.Identity{
		Subject:       "google-sub-1",
		Email:         testUserEmail,
		EmailVerified: true,
		Name:          "John Doe",
		Picture:       "https://example.com/avatar.png",
	}}

	srv, err := server.New(config.New(), ur, m, google, zerolog.Nop())
	require.NoError(t, err)

	return &testFixture{userRepo: ur, manager: m, google: google, server: srv}
}

func (f *testFixture) createTestUser(t *testing.T) *users.User {
	t.Helper()

	passwordHash, err := users.HashPassword(testPassword)
	require.NoError(t, err)

	user := &users.User{
		Email:        testUserEmail,
		Name:         "John Doe",
		Role:         users.RoleUser,
		IsActive:     true,
		PasswordHash: passwordHash,
	}
	require.NoError(t, f.userRepo.Upsert(user))
	return user
}

func (f *testFixture) request(t *testing.T, method, path string, body any, accessToken string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	body := decodeBody[map[string]string](t, rec)
	return body["error"]
}

func TestGoogleAuthURL_ReturnsURLAndState(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/auth/google/url", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Contains(t, body["authorization_url"], "accounts.google.com")
	require.Equal(t, "abc", body["state"])
}

func TestGoogleAuthURL_ProviderUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	f.google.authURLErr = errors.New("provider down")

	rec := f.request(t, http.MethodGet, "/api/v1/auth/google/url", nil, "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "server_error", errorCode(t, rec))
}

func TestGoogleCallback_CreatesUserAndIssuesTokens(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/google/callback",
		map[string]string{"code": "code-1", "state": "abc"}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		User   *users.User      `json:"user"`
		Tokens *token.TokenPair `json:"tokens"`
	}](t, rec)

	require.Equal(t, testUserEmail, body.User.Email)
	require.Equal(t, users.RoleUser, body.User.Role)
	require.True(t, body.User.IsActive)
	require.NotEmpty(t, body.Tokens.AccessToken)
	require.NotEmpty(t, body.Tokens.RefreshToken)

	stored, err := f.userRepo.GetByEmail(testUserEmail)
	require.NoError(t, err)
	require.Equal(t, body.User.ID, stored.ID)
}

func TestGoogleCallback_UpdatesExistingUser(t *testing.T) {
	f := setupTestFixture(t)
	existing := f.createTestUser(t)
	f.google.identity.Name = "John Updated"

	rec := f.request(t, http.MethodPost, "/api/v1/auth/google/callback",
		map[string]string{"code": "code-1", "state": "abc"}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := f.userRepo.GetByEmail(testUserEmail)
	require.NoError(t, err)
	require.Equal(t, existing.ID, stored.ID, "a returning Google user keeps their account")
	require.Equal(t, "John Updated", stored.Name)
}

func TestGoogleCallback_MissingParameters(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/google/callback",
		map[string]string{"code": "code-1"}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestGoogleCallback_RejectedStateIsInvalidGrant(t *testing.T) {
	f := setupTestFixture(t)
	f.google.exchangeErr = googleauth.InvalidStateErr

	rec := f.request(t, http.MethodPost, "/api/v1/auth/google/callback",
		map[string]string{"code": "code-1", "state": "forged"}, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", errorCode(t, rec))
}

func TestRefresh_RotatesPair(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t))
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": pair.RefreshToken}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	newPair := decodeBody[token.TokenPair](t, rec)
	require.NotEmpty(t, newPair.AccessToken)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	// The consumed refresh token must be rejected when replayed.
	rec = f.request(t, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_grant", errorCode(t, rec))
}

func TestRefresh_MissingToken(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestMe_ReturnsAuthenticatedUser(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t)
	pair, err := f.manager.GenerateTokenPair(user)
	require.NoError(t, err)

	rec := f.request(t, http.MethodGet, "/api/v1/auth/me", nil, pair.AccessToken)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[users.User](t, rec)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, testUserEmail, got.Email)
}

func TestMe_RequiresBearerToken(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/v1/auth/me", nil, "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestMe_RejectsRefreshTokenAsBearer(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t))
	require.NoError(t, err)

	rec := f.request(t, http.MethodGet, "/api/v1/auth/me", nil, pair.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe_RejectsInactiveUser(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t)
	pair, err := f.manager.GenerateTokenPair(user)
	require.NoError(t, err)

	require.NoError(t, f.userRepo.SetActive(user.Email, false))

	rec := f.request(t, http.MethodGet, "/api/v1/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_RevokesRefreshTokens(t *testing.T) {
	f := setupTestFixture(t)
	pair, err := f.manager.GenerateTokenPair(f.createTestUser(t))
	require.NoError(t, err)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/logout", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// The revoked refresh token can no longer be exchanged.
	rec = f.request(t, http.MethodPost, "/api/v1/auth/refresh",
		map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_CreatesUser(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": testPassword,
		"name":     "John Doe",
		"company":  "MarkHive",
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	got := decodeBody[users.User](t, rec)
	require.Equal(t, testUserEmail, got.Email)
	require.Equal(t, "MarkHive", got.Company)
	require.True(t, got.IsActive)

	// The hash must never leak into responses.
	require.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_WeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": "short",
	}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": testPassword,
	}, "")

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_IssuesTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    testUserEmail,
		"password": testPassword,
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeBody[token.TokenPair](t, rec)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, token.BearerTokenType, pair.TokenType)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    testUserEmail,
		"password": "WrongPassword1",
	}, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestLogin_InactiveUser(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t)
	require.NoError(t, f.userRepo.SetActive(user.Email, false))

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    testUserEmail,
		"password": testPassword,
	}, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth_ReportsOK(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.request(t, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "ok", body["status"])
}
