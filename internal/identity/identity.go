// Package identity carries the authenticated caller through a request context.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Role names. Stored on accounts and used as casbin subjects ("role:<name>").
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Anonymous is the reporter id recorded when no account submitted a report.
const Anonymous snowflake.ID = 0

// Identity is the caller resolved from a verified token.
type Identity struct {
	AccountID snowflake.ID
	Email     string
	Role      string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func (i Identity) IsZero() bool {
	return i.AccountID == 0
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the caller, if the request was authenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, false
	}
	return id, true
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}
