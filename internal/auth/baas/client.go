// Package baas talks to the hosted auth service (GoTrue-compatible REST API)
// that owns user accounts and OAuth provider integrations.
package baas

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("baas: unauthorized")
	ErrNotFound     = errors.New("baas: not found")
)

// Config holds the BaaS project URL and keys.
type Config struct {
	BaseURL        string
	AnonKey        string
	ServiceRoleKey string
}

// Client handles the PKCE OAuth flow and session/user calls.
type Client struct {
	config     Config
	httpClient *http.Client
}

// Session is what the token endpoint returns after a successful exchange.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// User is the subset of the BaaS user record the server needs.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DisplayName picks the best name the identity provider gave us.
func (u User) DisplayName() string {
	for _, key := range []string{"full_name", "name", "user_name", "preferred_username"} {
		if v, ok := u.UserMetadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (u User) AvatarURL() string {
	if v, ok := u.UserMetadata["avatar_url"].(string); ok {
		return v
	}
	return ""
}

func (u User) Provider() string {
	if v, ok := u.AppMetadata["provider"].(string); ok {
		return v
	}
	return ""
}

// APIError is a non-2xx response from the auth service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("baas: status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("baas: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// NewClient creates a BaaS auth client with conservative timeouts.
func NewClient(config Config) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AuthorizeURL is where the browser goes to start an OAuth sign-in with
// provider. The auth service redirects back to redirectTo with ?code=.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	}
	return c.config.BaseURL + "/auth/v1/authorize?" + params.Encode()
}

// ExchangeCode trades the authorization code and PKCE verifier for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	if code == "" || verifier == "" {
		return nil, fmt.Errorf("baas: code and verifier are required")
	}
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", c.config.AnonKey, "", body, &session); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("exchange code: no access token in response")
	}
	return &session, nil
}

// Refresh rotates a refresh token into a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	var session Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", c.config.AnonKey, "", body, &session); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return &session, nil
}

// GetUser fetches the user behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", c.config.AnonKey, accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the refresh tokens of the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", c.config.AnonKey, accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// DeleteUser removes the auth user through the admin API. A user that is
// already gone is not an error.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.config.ServiceRoleKey == "" {
		return fmt.Errorf("delete user: service role key not configured")
	}
	path := "/auth/v1/admin/users/" + url.PathEscape(userID)
	err := c.do(ctx, http.MethodDelete, path, c.config.ServiceRoleKey, c.config.ServiceRoleKey, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("apikey", apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		ErrorCode   string `json:"error_code"`
		Msg         string `json:"msg"`
		Message     string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)

	apiErr := &APIError{Status: resp.StatusCode}
	apiErr.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	apiErr.Message = firstNonEmpty(payload.Description, payload.Msg, payload.Message, strings.TrimSpace(string(raw)))
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewPKCE returns a code verifier and its S256 challenge (RFC 7636).
func NewPKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// GenerateState generates the random OAuth state parameter that is stored
// in a cookie and compared on callback.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
