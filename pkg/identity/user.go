// Package identity maps verified token claims to local user records,
// provisioning them just-in-time on first login.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a persistent identity record. Exactly one User exists per
// provider subject; email and subject are each globally unique. Records
// are created by the Resolver on first successful login and are never
// updated or deleted by the gateway.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Subject     string    `json:"subject"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserContextKey is the key used to store the resolved User in the
// request context. An empty struct type prevents collisions with other
// context keys.
type UserContextKey struct{}

// WithUser stores a User in the context. If user is nil, the original
// context is returned unchanged.
func WithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, UserContextKey{}, user)
}

// UserFromContext retrieves the authenticated User from the context.
// Returns the user and true if present, nil and false otherwise.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(UserContextKey{}).(*User)
	return user, ok
}
