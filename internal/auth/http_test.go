// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, agent lookup, and admin gate

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverhq/drover/internal/store"
)

func authedHandler(t *testing.T, captured **Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func setupAgentStore(t *testing.T) *store.MockStore {
	t.Helper()
	mock := store.NewMockStore()
	require.NoError(t, mock.CreateAgent(context.Background(), &store.Agent{
		ID:         "agent-1",
		Hostname:   "host-1",
		EnrolledAt: time.Now(),
	}))
	return mock
}

func TestMiddleware_BearerToken(t *testing.T) {
	verifier := newTestVerifier(t)
	mock := setupAgentStore(t)

	token, err := verifier.Generate("agent-1", RoleAgent, time.Hour)
	require.NoError(t, err)

	var captured *Identity
	handler := Middleware(verifier, mock)(authedHandler(t, &captured))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/agent-1/heartbeat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "agent-1", captured.Subject)
	assert.Equal(t, RoleAgent, captured.Role)
}

func TestMiddleware_QueryToken(t *testing.T) {
	verifier := newTestVerifier(t)
	mock := setupAgentStore(t)

	token, err := verifier.Generate("agent-1", RoleAgent, time.Hour)
	require.NoError(t, err)

	var captured *Identity
	handler := Middleware(verifier, mock)(authedHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/agent-1/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "agent-1", captured.Subject)
}

func TestMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)
	mock := setupAgentStore(t)

	agentToken, err := verifier.Generate("agent-1", RoleAgent, time.Hour)
	require.NoError(t, err)
	unknownToken, err := verifier.Generate("agent-ghost", RoleAgent, time.Hour)
	require.NoError(t, err)
	expiredToken, err := verifier.Generate("agent-1", RoleAgent, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name     string
		decorate func(r *http.Request)
		want     int
	}{
		{
			name:     "no credentials",
			decorate: func(r *http.Request) {},
			want:     http.StatusUnauthorized,
		},
		{
			name: "malformed header",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "garbage token",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer nonsense")
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+expiredToken)
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "unknown agent",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+unknownToken)
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "valid",
			decorate: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+agentToken)
			},
			want: http.StatusOK,
		},
	}

	var captured *Identity
	handler := Middleware(verifier, mock)(authedHandler(t, &captured))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/commands/x", nil)
			tt.decorate(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_RevokedAgent(t *testing.T) {
	verifier := newTestVerifier(t)
	mock := setupAgentStore(t)
	require.NoError(t, mock.SetAgentStatus(context.Background(), "agent-1", store.AgentStatusRevoked))

	token, err := verifier.Generate("agent-1", RoleAgent, time.Hour)
	require.NoError(t, err)

	var captured *Identity
	handler := Middleware(verifier, mock)(authedHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, captured, "handler must not run for a revoked agent")
}

func TestMiddleware_AdminSkipsAgentLookup(t *testing.T) {
	verifier := newTestVerifier(t)
	// Empty store: an admin token must not require an agent row.
	mock := store.NewMockStore()

	token, err := verifier.Generate("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	var captured *Identity
	handler := Middleware(verifier, mock)(authedHandler(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.True(t, captured.IsAdmin())
}

func TestRequireAdmin(t *testing.T) {
	var ran bool
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	t.Run("no identity", func(t *testing.T) {
		ran = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, ran)
	})

	t.Run("agent identity", func(t *testing.T) {
		ran = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), &Identity{Subject: "agent-1", Role: RoleAgent}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, ran)
	})

	t.Run("admin identity", func(t *testing.T) {
		ran = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), &Identity{Subject: "ops", Role: RoleAdmin}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, ran)
	})
}
