// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Extracts the session token from the Authorization header and loads the user

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomepile/tomepile/internal/store"
)

// UserStore is the subset of the store needed to resolve token claims to a user.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
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

// Middleware creates an HTTP middleware that validates bearer tokens and adds
// the authenticated user to the request context. Although token validation is
// stateless, the user row is loaded so that deleted accounts are rejected.
func Middleware(users UserStore, issuer TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			claims, err := issuer.Validate(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			user, err := users.GetUser(r.Context(), claims.UserID)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
