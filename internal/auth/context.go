// ABOUTME: Authenticated identity propagated through request handlers
// ABOUTME: Provides WithIdentity/FromContext for carrying identity via context

package auth

import (
	"context"
)

// Role classifies who is calling the API.
type Role string

const (
	// RoleOperator is the administrative role: full access, including
	// ticket and agent mutations.
	RoleOperator Role = "operator"
	// RoleAgent is a human support agent working assigned tickets.
	RoleAgent Role = "agent"
)

// Identity holds the authenticated caller extracted from a request.
// It is populated by the auth middleware and retrieved from context in
// handlers.
type Identity struct {
	ID   string
	Role Role
}

// IsOperator returns true if the caller holds the operator role.
func (i *Identity) IsOperator() bool {
	return i.Role == RoleOperator
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
