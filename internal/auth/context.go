// ABOUTME: Request context plumbing for the authenticated user
// ABOUTME: WithUser/UserFromContext pair shared by middleware and handlers

package auth

import (
	"context"

	"github.com/tomepile/tomepile/internal/store"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userContextKey contextKey = "auth_user"

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user, or nil if the
// request was not authenticated.
func UserFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)
	return user
}
