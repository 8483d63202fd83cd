package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/markhive/go-auth/googleauth"
	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
)

type authURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type callbackResponse struct {
	User   *users.User      `json:"user"`
	Tokens *token.TokenPair `json:"tokens"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Company  string `json:"company,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleAuthURLHandler starts the OAuth flow: issues an authorization URL
// and the anti-forgery state the callback must echo back.
func (s *Server) GoogleAuthURLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, state, err := s.google.AuthorizationURL(r.Context())
		if err != nil {
			s.log.Err(err).Msg("Failed to build authorization URL")
			s.writeError(w, http.StatusServiceUnavailable, errCodeServerError, "could not reach identity provider")
			return
		}
		s.writeJSON(w, http.StatusOK, authURLResponse{AuthorizationURL: authURL, State: state})
	}
}

// GoogleCallbackHandler exchanges the single-use authorization code for an
// identity, upserts the user, and issues a MarkHive token pair.
func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "malformed request body")
			return
		}
		if req.Code == "" || req.State == "" {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "missing code or state parameter")
			return
		}

		identity, err := s.google.Exchange(r.Context(), req.Code, req.State)
		if err != nil {
			if errors.Is(err, googleauth.InvalidStateErr) || errors.Is(err, googleauth.ExchangeFailedErr) {
				s.writeError(w, http.StatusUnauthorized, errCodeInvalidGrant, "code or state rejected")
				return
			}
			s.log.Err(err).Msg("Google exchange failed")
			s.writeError(w, http.StatusServiceUnavailable, errCodeServerError, "identity provider unavailable")
			return
		}

		user, err := s.findOrCreateGoogleUser(identity)
		if err != nil {
			s.log.Err(err).Str("email", identity.Email).Msg("Failed to upsert user")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to create user")
			return
		}

		pair, err := s.tokens.GenerateTokenPair(user)
		if err != nil {
			s.log.Err(err).Msg("Failed to issue token pair")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to issue tokens")
			return
		}

		s.writeJSON(w, http.StatusOK, callbackResponse{User: user, Tokens: pair})
	}
}

// RefreshHandler rotates a refresh token into a new pair. A rejected token
// always maps to invalid_grant so the client knows re-login is required.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "missing refresh_token")
			return
		}

		pair, err := s.tokens.Refresh(req.RefreshToken)
		if err != nil {
			if errors.Is(err, token.InvalidRefreshTokenErr) {
				s.writeError(w, http.StatusUnauthorized, errCodeInvalidGrant, "refresh token rejected")
				return
			}
			s.log.Err(err).Msg("Refresh failed")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to refresh tokens")
			return
		}

		s.writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "no authenticated user")
			return
		}
		s.writeJSON(w, http.StatusOK, user)
	}
}

// LogoutHandler revokes every refresh token of the authenticated user. The
// access token is short-lived and left to expire on its own.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "no authenticated user")
			return
		}

		if err := s.tokens.RevokeUserRefreshTokens(user.ID); err != nil {
			s.log.Err(err).Str("user_id", user.ID).Msg("Failed to revoke refresh tokens")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to revoke tokens")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"message": "successfully logged out"})
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "missing email")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
			return
		}
		if _, err := s.users.GetByEmail(req.Email); err == nil {
			s.writeError(w, http.StatusConflict, errCodeInvalidRequest, "user already exists")
			return
		}

		passwordHash, err := users.HashPassword(req.Password)
		if err != nil {
			s.log.Err(err).Msg("Failed to hash password")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to register user")
			return
		}

		now := time.Now()
		user := &users.User{
			Email:        req.Email,
			Name:         req.Name,
			Company:      req.Company,
			Role:         users.RoleUser,
			IsActive:     true,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.users.Upsert(user); err != nil {
			s.log.Err(err).Str("email", req.Email).Msg("Failed to store user")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to register user")
			return
		}

		s.writeJSON(w, http.StatusCreated, user)
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
			s.writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "missing email or password")
			return
		}

		user, err := s.users.GetByEmail(req.Email)
		if err != nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "incorrect email or password")
			return
		}
		if !user.IsActive {
			s.writeError(w, http.StatusUnauthorized, errCodeUnauthorized, "user is inactive")
			return
		}

		pair, err := s.tokens.GenerateTokenPair(user)
		if err != nil {
			s.log.Err(err).Msg("Failed to issue token pair")
			s.writeError(w, http.StatusInternalServerError, errCodeServerError, "failed to issue tokens")
			return
		}

		s.writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) findOrCreateGoogleUser(identity *googleauth.Identity) (*users.User, error) {
	now := time.Now()

	existing, err := s.users.GetByEmail(identity.Email)
	if err == nil {
		existing.Name = identity.Name
		existing.AvatarURL = identity.Picture
		existing.UpdatedAt = now
		if err := s.users.Upsert(existing); err != nil {
			return nil, errors.Wrap(err, "[findOrCreateGoogleUser] update existing")
		}
		return existing, nil
	}
	if !errors.Is(err, users.NotFoundErr) {
		return nil, errors.Wrap(err, "[findOrCreateGoogleUser] GetByEmail")
	}

	user := &users.User{
		Email:     identity.Email,
		Name:      identity.Name,
		AvatarURL: identity.Picture,
		Role:      users.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Upsert(user); err != nil {
		return nil, errors.Wrap(err, "[findOrCreateGoogleUser] create new")
	}
	return user, nil
}
