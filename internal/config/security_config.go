package config

import "time"

type SecurityConfig interface {
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetJWTSecret returns the HS256 signing secret. Server-side only, never
// exposed to clients.
func (Security) GetJWTSecret() string {
	return GetEnv("SECRET_KEY", "")
}

func (Security) GetAccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}

func (Security) GetRefreshTokenExpiry() time.Duration {
	return 7 * 24 * time.Hour // 7 days
}
