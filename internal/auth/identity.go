// Package auth carries the verified identity assertion through the
// request path and issues/verifies the tokens it comes from.
package auth

import "context"

// Roles a user may hold. Exactly one ADMIN exists; everyone else is a
// CLIENT at some authority level.
const (
	RoleAdmin  = "ADMIN"
	RoleClient = "CLIENT"
)

// Identity is the externally-verified {user, role, level} assertion
// attached to every engine operation. The engine trusts it and never
// mutates it.
type Identity struct {
	UserID string
	Email  string
	Role   string
	Level  int
}

// IsAdmin reports whether the identity holds the ADMIN role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type contextKey struct{}

// NewContext returns ctx carrying the identity.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the identity set by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
