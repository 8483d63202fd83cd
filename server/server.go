package server

import (
	"context"
	"net/http"

	"github.com/markhive/go-auth/googleauth"
	"github.com/markhive/go-auth/internal/config"
	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// GoogleAuthorizer is the slice of googleauth.Service the server needs.
// Narrowed to an interface so handler tests can fake the provider.
type GoogleAuthorizer interface {
	AuthorizationURL(ctx context.Context) (authorizationURL, state string, err error)
	Exchange(ctx context.Context, code, state string) (*googleauth.Identity, error)
}

type Server struct {
	env    string // Environment (e.g., "DEV", "production")
	mux    *http.ServeMux
	routes []string
	config config.Config
	log    zerolog.Logger

	users  users.UserRepo
	tokens *token.Manager
	google GoogleAuthorizer
}

func New(cfg config.Config, userRepo users.UserRepo, tokenManager *token.Manager, google GoogleAuthorizer, log zerolog.Logger) (*Server, error) {
	if userRepo == nil {
		return nil, errors.New("[server.New] user repo is required")
	}
	if tokenManager == nil {
		return nil, errors.New("[server.New] token manager is required")
	}
	if google == nil {
		return nil, errors.New("[server.New] google authorizer is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		log:    log,
		users:  userRepo,
		tokens: tokenManager,
		google: google,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		s.log.Debug().Str("route", route).Msg("registered")
	}
}
