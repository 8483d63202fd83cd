package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated user
	ContextKeyUser ContextKey = "user"
	// ContextKeyClaims stores the parsed access-token claims
	ContextKeyClaims ContextKey = "claims"
)

// RequireAuth validates a Bearer access token and injects the user into the
// request context. The backend is authoritative: a locally unexpired token is
// still rejected here if its signature, type, or user no longer check out.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "missing bearer token")
				return
			}
			rawToken := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := s.tokens.Verify(rawToken, token.TypeAccess)
			if err != nil {
				s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid access token")
				return
			}

			user, err := s.users.GetByID(claims.UserID)
			if err != nil {
				s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "unknown user")
				return
			}
			if !user.IsActive {
				s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "user is inactive")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func userFromContext(ctx context.Context) (*users.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(*users.User)
	return user, ok
}
