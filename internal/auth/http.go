// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header or token query parameter

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/droverhq/drover/internal/store"
)

// AgentGetter is the slice of the store the middleware needs to check
// that an agent token still belongs to a live enrollment.
type AgentGetter interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// tokenFromRequest reads the credential from the Authorization header,
// falling back to the token query parameter. The query form exists for
// socket dials, which cannot always set headers.
func tokenFromRequest(r *http.Request) (string, string) {
	if r.Header.Get("Authorization") != "" {
		return extractBearerToken(r.Header.Get("Authorization"))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing credentials"
}

// Middleware creates an HTTP middleware that extracts and validates JWT
// tokens. Agent identities are additionally checked against the agent
// table so that revoking an agent cuts off its existing tokens.
func Middleware(verifier TokenVerifier, agents AgentGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := tokenFromRequest(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if identity.Role == RoleAgent {
				agent, err := agents.GetAgent(r.Context(), identity.Subject)
				if err != nil {
					http.Error(w, `{"error":"agent not found"}`, http.StatusUnauthorized)
					return
				}
				if agent.Status == store.AgentStatusRevoked {
					http.Error(w, `{"error":"agent has been revoked"}`, http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin creates an HTTP middleware that requires the admin role.
// Must be used after Middleware.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := FromContext(r.Context())
			if identity == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			if !identity.IsAdmin() {
				http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
