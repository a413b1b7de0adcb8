// Package session carries the authenticated principal and its opaque bearer
// token through request contexts. The token is never parsed; identity comes
// from the backend's own account endpoint.
package session

import (
	"context"
	"errors"
	"strings"
)

// Session errors.
var (
	ErrNoSession       = errors.New("no active session")
	ErrMissingToken    = errors.New("missing bearer token")
	ErrMalformedHeader = errors.New("invalid authorization header format")
)

// Role is an account role as assigned by the backend.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Principal identifies the signed-in operator.
type Principal struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Key returns a stable identifier for the principal, preferring the account ID.
func (p Principal) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Username
}

// Context is the authentication state attached to a request.
type Context struct {
	Token     string
	Principal Principal
}

// Active reports whether a bearer token is present.
func (c Context) Active() bool {
	return c.Token != ""
}

// HasRole reports whether the session is active and holds role.
func (c Context) HasRole(role Role) bool {
	return c.Active() && c.Principal.Role == role
}

// IsSelf reports whether an account ID or username refers to the signed-in principal.
func (c Context) IsSelf(id, username string) bool {
	if id != "" && c.Principal.ID != "" && id == c.Principal.ID {
		return true
	}
	return username != "" && c.Principal.Username != "" && username == c.Principal.Username
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying sess.
func WithContext(ctx context.Context, sess Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session carried by ctx, or an inactive Context.
func FromContext(ctx context.Context) Context {
	if sess, ok := ctx.Value(contextKey{}).(Context); ok {
		return sess
	}
	return Context{}
}

// Require returns the active session carried by ctx or ErrNoSession.
func Require(ctx context.Context) (Context, error) {
	sess := FromContext(ctx)
	if !sess.Active() {
		return Context{}, ErrNoSession
	}
	return sess, nil
}

// BearerToken extracts the token from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	const bearerPrefix = "Bearer "
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMalformedHeader
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
