package shared

import (
	"context"
	"strings"
)

// Identity is the caller context carried by every read and write.
type Identity struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	Department string `json:"departmentTag"`
	Name       string `json:"name,omitempty"`
}

// Anonymous reports whether the identity lacks a user id.
func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// DisplayName prefers the human name and falls back to the user id.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return i.UserID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.Anonymous() {
		return Identity{}, false
	}
	return id, true
}
