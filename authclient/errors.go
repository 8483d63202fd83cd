package authclient

import "errors"

// Failure taxonomy for auth backend calls. Callers branch with errors.Is.
var (
	// ServiceUnavailableErr covers transport failures, timeouts and 5xx
	// responses. Recoverable: the user may retry.
	ServiceUnavailableErr = errors.New("auth service unavailable")

	// InvalidGrantErr means a code or refresh token was rejected (expired,
	// reused or mismatched). Not retryable; forces re-login.
	InvalidGrantErr = errors.New("invalid grant")

	// UnauthorizedErr means the backend rejected the access token, even if
	// it looked unexpired locally. Forces re-login.
	UnauthorizedErr = errors.New("unauthorized")

	// MalformedCallbackErr means the redirect arrived without code or state.
	// Detected before any network call; the user must restart login.
	MalformedCallbackErr = errors.New("malformed oauth callback")
)
