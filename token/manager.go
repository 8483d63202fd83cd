package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
)

var (
	InvalidTokenErr        = errors.New("invalid token")
	InvalidTokenTypeErr    = errors.New("invalid token type")
	InvalidRefreshTokenErr = errors.New("invalid refresh token")
)

// Token type claims. An access token can never be replayed as a refresh
// token or vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the verified content of a MarkHive-issued token.
type Claims struct {
	UserID    string
	Email     string
	TokenType string
	JTI       string
	ExpiresAt time.Time
}

// Manager creates and verifies the HS256-signed access/refresh token pairs
// the auth service issues after a successful Google exchange or login.
type Manager struct {
	refreshRepo   RefreshTokenRepo
	userRepo      users.UserRepo
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	nowFunc       func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessExpiry = accessExpiry
		m.refreshExpiry = refreshExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func New(refreshRepo RefreshTokenRepo, userRepo users.UserRepo, secret string, options ...ManagerOption) (*Manager, error) {
	if refreshRepo == nil {
		return nil, errors.New("[token.New] refresh token repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[token.New] user repo is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("[token.New] signing secret is required")
	}

	m := &Manager{
		refreshRepo: refreshRepo,
		userRepo:    userRepo,
		secret:      []byte(secret),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessExpiry == 0 {
		m.accessExpiry = 15 * time.Minute
	}
	if m.refreshExpiry == 0 {
		m.refreshExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// GenerateTokenPair issues an access token and a stored refresh token for the
// user. Any previously issued refresh tokens for the user stay valid until
// they expire or are rotated away.
func (m *Manager) GenerateTokenPair(user *users.User) (*TokenPair, error) {
	accessToken, err := m.createToken(user, TypeAccess, m.accessExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GenerateTokenPair] access token")
	}

	refreshJTI := uuid.New().String()
	refreshToken, err := m.createTokenWithJTI(user, TypeRefresh, m.refreshExpiry, refreshJTI)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.GenerateTokenPair] refresh token")
	}

	if err := m.refreshRepo.Upsert(&StoredRefreshToken{
		JTI:       refreshJTI,
		UserID:    user.ID,
		IssuedAt:  m.nowFunc(),
		ExpiresAt: m.nowFunc().Add(m.refreshExpiry),
	}); err != nil {
		return nil, errors.Wrap(err, "[Manager.GenerateTokenPair] refreshRepo.Upsert")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    BearerTokenType,
		ExpiresIn:    int64(m.accessExpiry.Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new token pair. Refresh tokens are
// single-use: the presented token is revoked before the new pair is issued,
// so a replayed token fails with InvalidRefreshTokenErr.
func (m *Manager) Refresh(rawRefreshToken string) (*TokenPair, error) {
	claims, err := m.Verify(rawRefreshToken, TypeRefresh)
	if err != nil {
		return nil, errors.Wrap(InvalidRefreshTokenErr, err.Error())
	}

	stored, err := m.refreshRepo.Get(claims.JTI)
	if err != nil || stored == nil {
		return nil, errors.Wrap(InvalidRefreshTokenErr, "token not found in store")
	}
	if stored.UserID != claims.UserID {
		return nil, errors.Wrap(InvalidRefreshTokenErr, "token subject mismatch")
	}

	if err := m.refreshRepo.Delete(claims.JTI); err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] refreshRepo.Delete")
	}

	user, err := m.userRepo.GetByID(claims.UserID)
	if err != nil {
		return nil, errors.Wrap(InvalidRefreshTokenErr, "unknown user")
	}
	if !user.IsActive {
		return nil, errors.Wrap(InvalidRefreshTokenErr, "user is inactive")
	}

	return m.GenerateTokenPair(user)
}

// Verify parses and validates a token, checking signature, expiry and the
// expected token type.
func (m *Manager) Verify(rawToken, tokenType string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, InvalidTokenErr
	}

	parsed, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.nowFunc))
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(InvalidTokenErr, "parse failed")
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(InvalidTokenErr, "error extracting claims")
	}

	claimType, _ := mapClaims["type"].(string)
	if claimType != tokenType {
		return nil, errors.Wrapf(InvalidTokenTypeErr, "expected %q got %q", tokenType, claimType)
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, errors.Wrap(InvalidTokenErr, "missing subject")
	}
	email, _ := mapClaims["email"].(string)
	jti, _ := mapClaims["jti"].(string)
	exp, _ := mapClaims["exp"].(float64)

	return &Claims{
		UserID:    sub,
		Email:     email,
		TokenType: claimType,
		JTI:       jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// RevokeUserRefreshTokens invalidates every refresh token issued to the user.
// Called on logout; the short-lived access token is left to expire.
func (m *Manager) RevokeUserRefreshTokens(userID string) error {
	if err := m.refreshRepo.DeleteByUserID(userID); err != nil {
		return errors.Wrap(err, "[Manager.RevokeUserRefreshTokens] refreshRepo.DeleteByUserID")
	}
	return nil
}

func (m *Manager) createToken(user *users.User, tokenType string, expiry time.Duration) (string, error) {
	return m.createTokenWithJTI(user, tokenType, expiry, uuid.New().String())
}

func (m *Manager) createTokenWithJTI(user *users.User, tokenType string, expiry time.Duration, jti string) (string, error) {
	claims := jwt.MapClaims{
		"iss":   m.issuer,
		"sub":   user.ID,
		"email": user.Email,
		"type":  tokenType,
		"iat":   m.nowFunc().Unix(),
		"exp":   m.nowFunc().Add(expiry).Unix(),
		"jti":   jti,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "SignedString")
	}
	return signed, nil
}
