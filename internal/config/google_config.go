package config

import (
	"strings"
	"time"
)

type GoogleConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleRedirectURI() string
	GetGoogleScopes() []string
	GetStateTTL() time.Duration
}

type Google struct{}

var _ GoogleConfig = Google{}

func (Google) GetGoogleClientID() string {
	return GetEnv("GOOGLE_CLIENT_ID", "")
}

func (Google) GetGoogleClientSecret() string {
	return GetEnv("GOOGLE_CLIENT_SECRET", "")
}

// GetGoogleRedirectURI is where Google sends the user back after consent.
// Points at the frontend callback route, which forwards code+state to
// POST /api/v1/auth/google/callback.
func (Google) GetGoogleRedirectURI() string {
	return GetEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/auth/callback")
}

func (Google) GetGoogleScopes() []string {
	scopes := GetEnv("GOOGLE_SCOPES", "openid email profile")
	return strings.Fields(scopes)
}

// GetStateTTL bounds how long an issued anti-forgery state stays exchangeable.
func (Google) GetStateTTL() time.Duration {
	return 10 * time.Minute
}
