package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix and OAuth responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockClipsResponse adds a handler for the /helix/clips endpoint
func (m *MockTwitchServer) MockClipsResponse(clips []map[string]interface{}, cursor string) {
	m.Handlers["/helix/clips"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": clips,
			"pagination": map[string]string{
				"cursor": cursor,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockGamesResponse adds a handler for the /helix/games endpoint. Only the
// games matching the request's id params are served, like the real endpoint.
func (m *MockTwitchServer) MockGamesResponse(games []map[string]string) {
	m.Handlers["/helix/games"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": filterByID(games, r.URL.Query()["id"]),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockUsersResponse adds a handler for the /helix/users endpoint. Only the
// users matching the request's id params are served, like the real endpoint.
func (m *MockTwitchServer) MockUsersResponse(users []map[string]string) {
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": filterByID(users, r.URL.Query()["id"]),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// filterByID narrows records to the ids named in the request. A request with
// no id params gets everything.
func filterByID(records []map[string]string, ids []string) []map[string]string {
	if len(ids) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		if _, ok := want[rec["id"]]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// MockOAuthTokenResponse adds a handler for the client-credentials token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockValidateResponse adds a handler for the /oauth2/validate endpoint.
// When valid is false the endpoint responds 401 like the real one.
func (m *MockTwitchServer) MockValidateResponse(valid bool, expiresIn int) {
	m.Handlers["/oauth2/validate"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 401, "message": "invalid access token"}) //nolint:errcheck // test mock response
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"expires_in": expiresIn}) //nolint:errcheck // test mock response
	}
}

// MockWebhookServer records webhook deliveries and serves a fixed status code.
type MockWebhookServer struct {
	*httptest.Server
	StatusCode int
	Payloads   []map[string]interface{}
}

// NewMockWebhookServer creates a webhook endpoint that captures JSON payloads.
func NewMockWebhookServer(t *testing.T, statusCode int) *MockWebhookServer {
	t.Helper()
	m := &MockWebhookServer{StatusCode: statusCode}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload) //nolint:errcheck // test capture
		m.Payloads = append(m.Payloads, payload)
		w.WriteHeader(m.StatusCode)
	}))
	t.Cleanup(m.Close)
	return m
}
