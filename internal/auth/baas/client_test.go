package baas

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestAuthorizeURL(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://project.baas.test/", AnonKey: "anon"})

	authURL := client.AuthorizeURL("github", "https://punktual.app/auth/callback", "challenge-123")

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Failed to parse auth URL: %v", err)
	}
	if parsed.Host != "project.baas.test" || parsed.Path != "/auth/v1/authorize" {
		t.Errorf("unexpected authorize endpoint: %s", authURL)
	}

	query := parsed.Query()
	for param, expected := range map[string]string{
		"provider":              "github",
		"redirect_to":           "https://punktual.app/auth/callback",
		"code_challenge":        "challenge-123",
		"code_challenge_method": "s256",
	} {
		if got := query.Get(param); got != expected {
			t.Errorf("Expected %s=%s, got %s", param, expected, got)
		}
	}
}

func TestExchangeCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "pkce" {
			t.Errorf("unexpected token URL: %s", r.URL.String())
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("Expected apikey header")
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["auth_code"] != "the-code" || body["code_verifier"] != "the-verifier" {
			t.Errorf("unexpected body: %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"token_type":    "bearer",
			"user": map[string]any{
				"id":            "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f",
				"email":         "ada@example.com",
				"user_metadata": map[string]any{"full_name": "Ada Lovelace", "avatar_url": "https://img.test/a.png"},
				"app_metadata":  map[string]any{"provider": "github"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, AnonKey: "anon"})
	session, err := client.ExchangeCode(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if session.AccessToken != "access-1" || session.RefreshToken != "refresh-1" {
		t.Errorf("unexpected session: %+v", session)
	}
	if session.User.DisplayName() != "Ada Lovelace" || session.User.Provider() != "github" || session.User.AvatarURL() == "" {
		t.Errorf("unexpected user: %+v", session.User)
	}
}

func TestExchangeCode_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.ExchangeCode(context.Background(), "c", "v")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "invalid_grant" || apiErr.Message != "code expired" {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
}

func TestExchangeCode_RequiresVerifier(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://unused"})
	if _, err := client.ExchangeCode(context.Background(), "code", ""); err == nil {
		t.Fatal("expected error without verifier")
	}
}

func TestGetUser_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, AnonKey: "anon"})
	_, err := client.GetUser(context.Background(), "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant type %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"access_token":"access-2","refresh_token":"refresh-2"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, AnonKey: "anon"})
	session, err := client.Refresh(context.Background(), "refresh-1")
	if err != nil || session.AccessToken != "access-2" {
		t.Fatalf("unexpected refresh result %+v err %v", session, err)
	}

	if _, err := client.Refresh(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodDelete {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, ServiceRoleKey: "service"})
	if err := client.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if gotPath != "/auth/v1/admin/users/user-1" || gotAuth != "Bearer service" {
		t.Errorf("unexpected request path=%s auth=%s", gotPath, gotAuth)
	}
}

func TestDeleteUser_AlreadyGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"msg":"User not found"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, ServiceRoleKey: "service"})
	if err := client.DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected nil for missing user, got %v", err)
	}

	noKey := NewClient(Config{BaseURL: server.URL})
	if err := noKey.DeleteUser(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error without service role key")
	}
}

func TestNewPKCE(t *testing.T) {
	verifier, challenge, err := NewPKCE()
	if err != nil {
		t.Fatalf("NewPKCE failed: %v", err)
	}
	if len(verifier) < 43 {
		t.Errorf("verifier too short: %d", len(verifier))
	}
	sum := sha256.Sum256([]byte(verifier))
	if challenge != base64.RawURLEncoding.EncodeToString(sum[:]) {
		t.Error("challenge is not S256(verifier)")
	}
}

func TestGenerateState(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		state, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState failed: %v", err)
		}
		if _, err := base64.RawURLEncoding.DecodeString(state); err != nil {
			t.Errorf("state is not URL-safe base64: %v", err)
		}
		if seen[state] {
			t.Fatal("duplicate state")
		}
		seen[state] = true
	}
}
