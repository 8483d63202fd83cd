// Package authclient is the typed HTTP client for the MarkHive auth
// backend. Each method is a single request/response; retry and refresh
// policy belong to the session controller, not here.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/users"
	"github.com/pkg/errors"
)

const defaultRequestTimeout = 30 * time.Second

type AuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

type CallbackResponse struct {
	User   *users.User      `json:"user"`
	Tokens *token.TokenPair `json:"tokens"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[authclient.New] base URL is required")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// GetGoogleAuthURL requests an authorization URL and anti-forgery state.
func (c *Client) GetGoogleAuthURL(ctx context.Context) (*AuthURLResponse, error) {
	var resp AuthURLResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/google/url", nil, "", &resp, availabilityErrorMapping); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HandleGoogleCallback exchanges a one-time authorization code. Missing code
// or state fails with MalformedCallbackErr before any request is made.
func (c *Client) HandleGoogleCallback(ctx context.Context, code, state string) (*CallbackResponse, error) {
	if code == "" || state == "" {
		return nil, MalformedCallbackErr
	}

	body := map[string]string{"code": code, "state": state}
	var resp CallbackResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/google/callback", body, "", &resp, grantErrorMapping); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken exchanges a refresh token for a new pair. InvalidGrantErr
// means the token is invalid, revoked or expired.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp token.TokenPair
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", body, "", &resp, grantErrorMapping); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCurrentUser fetches the user behind an access token. The backend is
// authoritative: UnauthorizedErr can come back for a locally unexpired token.
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*users.User, error) {
	var user users.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, accessToken, &user, bearerErrorMapping); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout asks the backend to invalidate the session server-side. Callers
// treat failure as best-effort; local logout must not depend on it.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, accessToken, nil, bearerErrorMapping)
}

type errorMapping func(status int) error

// availabilityErrorMapping is for endpoints with no grant to invalidate:
// any failure only means the backend could not serve, and a retry is fine.
func availabilityErrorMapping(int) error {
	return ServiceUnavailableErr
}

// grantErrorMapping is for endpoints exchanging codes or refresh tokens.
func grantErrorMapping(status int) error {
	if status >= 400 && status < 500 {
		return InvalidGrantErr
	}
	return ServiceUnavailableErr
}

// bearerErrorMapping is for endpoints authenticated by an access token.
func bearerErrorMapping(status int) error {
	if status >= 400 && status < 500 {
		return UnauthorizedErr
	}
	return ServiceUnavailableErr
}

func (c *Client) do(ctx context.Context, method, path string, body any, accessToken string, out any, mapStatus errorMapping) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.do] marshal request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "[Client.do] build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ServiceUnavailableErr, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrap(mapStatus(resp.StatusCode), describeErrorBody(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(ServiceUnavailableErr, "decode response body")
	}
	return nil
}

func describeErrorBody(resp *http.Response) string {
	var apiErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		if apiErr.ErrorDescription != "" {
			return fmt.Sprintf("%s: %s", apiErr.Error, apiErr.ErrorDescription)
		}
		return apiErr.Error
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
