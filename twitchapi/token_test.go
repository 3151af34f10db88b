package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthClient_FetchAppToken_MintsNew(t *testing.T) {
	var sawGrant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			sawGrant = r.PostForm.Get("grant_type")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "freshtoken123",
				"expires_in":   5000,
				"token_type":   "bearer",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := &AuthClient{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL},
		},
	}

	token, expiresIn, err := a.FetchAppToken(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchAppToken() error = %v", err)
	}
	if token != "freshtoken123" {
		t.Errorf("token = %q, want freshtoken123", token)
	}
	if expiresIn != 5000 {
		t.Errorf("expiresIn = %d, want 5000", expiresIn)
	}
	if sawGrant != "client_credentials" {
		t.Errorf("grant_type = %q, want client_credentials", sawGrant)
	}
}

func TestAuthClient_FetchAppToken_ReusesValidPrior(t *testing.T) {
	tokenCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/validate":
			if r.Header.Get("Authorization") != "OAuth priortoken456" {
				t.Errorf("wrong Authorization header: %s", r.Header.Get("Authorization"))
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"expires_in": 1200})
		case "/oauth2/token":
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "should-not-be-used", "expires_in": 5000})
		}
	}))
	defer server.Close()

	a := &AuthClient{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL},
		},
	}

	token, expiresIn, err := a.FetchAppToken(context.Background(), "priortoken456")
	if err != nil {
		t.Fatalf("FetchAppToken() error = %v", err)
	}
	if token != "priortoken456" {
		t.Errorf("token = %q, want reused prior token", token)
	}
	if expiresIn != 1200 {
		t.Errorf("expiresIn = %d, want 1200", expiresIn)
	}
	if tokenCalls != 0 {
		t.Errorf("token endpoint called %d times, want 0", tokenCalls)
	}
}

func TestAuthClient_FetchAppToken_RejectedPriorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/validate":
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"status": 401, "message": "invalid access token"})
		case "/oauth2/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "replacement789", "expires_in": 4800})
		}
	}))
	defer server.Close()

	a := &AuthClient{
		ClientID:     "test-client-id",
		ClientSecret: "test-secret",
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL},
		},
	}

	token, _, err := a.FetchAppToken(context.Background(), "revokedtoken")
	if err != nil {
		t.Fatalf("FetchAppToken() error = %v", err)
	}
	if token != "replacement789" {
		t.Errorf("token = %q, want replacement789", token)
	}
}

func TestAuthClient_Validate(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expiresIn     int
		wantInvalid   bool
		wantErr       bool
		wantExpiresIn int
	}{
		{
			name:          "valid token",
			statusCode:    http.StatusOK,
			expiresIn:     3600,
			wantExpiresIn: 3600,
		},
		{
			name:        "rejected token",
			statusCode:  http.StatusUnauthorized,
			wantInvalid: true,
			wantErr:     true,
		},
		{
			name:       "upstream failure",
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if tt.statusCode == http.StatusOK {
					json.NewEncoder(w).Encode(map[string]interface{}{"expires_in": tt.expiresIn})
				}
			}))
			defer server.Close()

			a := &AuthClient{
				ClientID:     "test-client-id",
				ClientSecret: "test-secret",
				HTTPClient: &http.Client{
					Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL},
				},
			}

			expiresIn, err := a.Validate(context.Background(), "sometoken")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() error = nil, want error")
				}
				if tt.wantInvalid && !errors.Is(err, ErrTokenInvalid) {
					t.Errorf("Validate() error = %v, want ErrTokenInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if expiresIn != tt.wantExpiresIn {
				t.Errorf("Validate() expiresIn = %d, want %d", expiresIn, tt.wantExpiresIn)
			}
		})
	}
}
