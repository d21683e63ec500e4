package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr string
	}{
		{"valid", "Bearer abc123", "abc123", ""},
		{"surrounding space", "Bearer   abc123  ", "abc123", ""},
		{"missing", "", "", "missing Authorization header"},
		{"wrong scheme", "Basic abc123", "", "invalid Authorization header format"},
		{"empty token", "Bearer   ", "", "missing bearer token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(req)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "reader", Scopes: []string{ScopeEventsRead}},
		{Token: "writer", Scopes: []string{" events:rw ", ""}},
		{Token: "admin", Scopes: []string{ScopeAll}},
	}

	_, ok := Authenticate("nobody", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", []TokenConfig{{Token: ""}})
	assert.False(t, ok, "empty tokens never authenticate")

	p, ok := Authenticate("writer", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeEventsRead), "write implies read")

	p, ok = Authenticate("admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, "anything"))

	p, ok = Authenticate("reader", tokens)
	require.True(t, ok)
	assert.False(t, HasAnyScope(p, ScopeEventsWrite))
	assert.True(t, HasAnyScope(p))
}

func TestMiddleware(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "reader", Scopes: []string{ScopeEventsRead}},
		{Token: "other", Scopes: []string{"metrics:ro"}},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found := PrincipalFromContext(r.Context())
		assert.True(t, found)
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(tokens)(RequireScopes(ScopeEventsRead, ScopeEventsWrite)(ok))

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{"anonymous", "", http.StatusUnauthorized, `{"error":"missing Authorization header"}`},
		{"unknown token", "Bearer guess", http.StatusUnauthorized, `{"error":"invalid bearer token"}`},
		{"wrong scope", "Bearer other", http.StatusForbidden, `{"error":"insufficient scope"}`},
		{"reader", "Bearer reader", http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rr.Body.String())
			}
		})
	}
}

func TestRequireScopesWithoutPrincipal(t *testing.T) {
	handler := RequireScopes(ScopeEventsRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
