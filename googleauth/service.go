// Package googleauth implements the identity-provider half of the login
// flow: authorization-URL generation with anti-forgery state, authorization
// code exchange, and ID-token/userinfo identity extraction.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/markhive/go-auth/internal/config"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	InvalidStateErr   = errors.New("invalid or expired oauth state")
	ExchangeFailedErr = errors.New("authorization code exchange failed")
	UserinfoFailedErr = errors.New("userinfo request failed")
)

const (
	googleIssuerURL   = "https://accounts.google.com"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Identity is the verified identity extracted from a completed exchange.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Service drives the OAuth 2.0 authorization-code flow against Google.
type Service struct {
	oauthConfig *oauth2.Config
	states      StateStore
	userinfoURL string
	skipVerify  bool

	verifierOnce sync.Once
	verifier     *oidc.IDTokenVerifier
	verifierErr  error
}

type ServiceOption func(*Service)

// WithEndpoint overrides the Google OAuth endpoint, for tests.
func WithEndpoint(endpoint oauth2.Endpoint) ServiceOption {
	return func(s *Service) {
		s.oauthConfig.Endpoint = endpoint
	}
}

// WithUserinfoURL overrides the userinfo endpoint, for tests.
func WithUserinfoURL(url string) ServiceOption {
	return func(s *Service) {
		s.userinfoURL = url
	}
}

// WithoutIDTokenVerification disables OIDC ID-token verification and falls
// back to the userinfo endpoint for identity. Test use only.
func WithoutIDTokenVerification() ServiceOption {
	return func(s *Service) {
		s.skipVerify = true
	}
}

func New(cfg config.GoogleConfig, states StateStore, options ...ServiceOption) (*Service, error) {
	if cfg.GetGoogleClientID() == "" || cfg.GetGoogleClientSecret() == "" {
		return nil, errors.New("[googleauth.New] google client credentials are required")
	}
	if states == nil {
		return nil, errors.New("[googleauth.New] state store is required")
	}

	s := &Service{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GetGoogleClientID(),
			ClientSecret: cfg.GetGoogleClientSecret(),
			RedirectURL:  cfg.GetGoogleRedirectURI(),
			Scopes:       cfg.GetGoogleScopes(),
			Endpoint:     google.Endpoint,
		},
		states:      states,
		userinfoURL: googleUserinfoURL,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// AuthorizationURL generates the Google consent URL and the anti-forgery
// state round-tripped through the redirect.
func (s *Service) AuthorizationURL(ctx context.Context) (authorizationURL, state string, err error) {
	state = uuid.New().String()
	if err := s.states.Put(state); err != nil {
		return "", "", errors.Wrap(err, "[Service.AuthorizationURL] states.Put")
	}
	return s.oauthConfig.AuthCodeURL(state), state, nil
}

// Exchange redeems a single-use authorization code. The state must match one
// previously issued by AuthorizationURL; both the state and the code are
// consumed whether or not the exchange succeeds.
func (s *Service) Exchange(ctx context.Context, code, state string) (*Identity, error) {
	if !s.states.Consume(state) {
		return nil, InvalidStateErr
	}

	oauthToken, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(ExchangeFailedErr, err.Error())
	}

	if s.skipVerify {
		return s.fetchUserinfo(ctx, oauthToken)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrap(ExchangeFailedErr, "no ID token in response")
	}

	idToken, err := s.verifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(ExchangeFailedErr, err.Error())
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(ExchangeFailedErr, "failed to extract claims")
	}

	return &Identity{
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func (s *Service) verifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	s.verifierOnce.Do(func() {
		provider, err := oidc.NewProvider(ctx, googleIssuerURL)
		if err != nil {
			s.verifierErr = errors.Wrap(err, "oidc.NewProvider")
			return
		}
		s.verifier = provider.Verifier(&oidc.Config{ClientID: s.oauthConfig.ClientID})
	})
	if s.verifierErr != nil {
		return nil, s.verifierErr
	}
	return s.verifier.Verify(ctx, rawIDToken)
}

func (s *Service) fetchUserinfo(ctx context.Context, oauthToken *oauth2.Token) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userinfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(UserinfoFailedErr, err.Error())
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", oauthToken.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(UserinfoFailedErr, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Wrapf(UserinfoFailedErr, "status %d: %s", resp.StatusCode, string(body))
	}

	var userinfo struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userinfo); err != nil {
		return nil, errors.Wrap(UserinfoFailedErr, "decode response")
	}

	return &Identity{
		Subject:       userinfo.ID,
		Email:         userinfo.Email,
		EmailVerified: userinfo.VerifiedEmail,
		Name:          userinfo.Name,
		Picture:       userinfo.Picture,
	}, nil
}
