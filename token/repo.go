package token

import "time"

// StoredRefreshToken is the server-side record of an issued refresh token.
// The token itself is a signed JWT; the store is what makes it single-use -
// a refresh grant must both verify the signature and find the jti here.
type StoredRefreshToken struct {
	JTI       string    // Unique token ID (the jti claim)
	UserID    string    // Owner of the token
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshTokenRepo manages server-side refresh token records keyed by jti.
type RefreshTokenRepo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Get(jti string) (*StoredRefreshToken, error)
	Delete(jti string) error
	DeleteByUserID(userID string) error
}
