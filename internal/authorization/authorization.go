// Package authorization decides whether an authenticated caller may perform
// an action on a resource.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/identity"
)

var ErrForbidden = errors.New("forbidden")

const (
	ObjectReport  = "report"
	ObjectAccount = "account"
	ObjectAudit   = "audit"
)

type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdateStatus Action = "update_status"
	ActionVerify       Action = "verify"
	ActionAssignRole   Action = "assign_role"
	ActionRead         Action = "read"
)

// Resource is the thing being acted on. OwnerID is zero for resources
// without an owner.
type Resource struct {
	Type    string
	OwnerID snowflake.ID
}

func Report(ownerID snowflake.ID) Resource {
	return Resource{Type: ObjectReport, OwnerID: ownerID}
}

func Account(id snowflake.ID) Resource {
	return Resource{Type: ObjectAccount, OwnerID: id}
}

// AuditTrail is the audit log as a whole. It has no owner.
func AuditTrail() Resource {
	return Resource{Type: ObjectAudit}
}

// Policy returns nil when actor may perform action on res and ErrForbidden
// otherwise.
type Policy interface {
	Authorize(ctx context.Context, actor identity.Identity, res Resource, action Action) error
}

// CanMutateStatus reports whether actor may change the status of a report
// owned by ownerID: its reporter or an admin.
func CanMutateStatus(actor identity.Identity, ownerID snowflake.ID) bool {
	if actor.IsZero() {
		return false
	}
	return actor.IsAdmin() || (ownerID != identity.Anonymous && actor.AccountID == ownerID)
}

// Owns reports whether actor is the non-anonymous owner of res.
func Owns(actor identity.Identity, res Resource) bool {
	return !actor.IsZero() && res.OwnerID != identity.Anonymous && actor.AccountID == res.OwnerID
}

// OwnershipPolicy is the built-in rule set, evaluated in process.
type OwnershipPolicy struct{}

func (OwnershipPolicy) Authorize(ctx context.Context, actor identity.Identity, res Resource, action Action) error {
	if actor.IsZero() {
		return ErrForbidden
	}

	allowed := false
	switch res.Type {
	case ObjectReport:
		switch action {
		case ActionCreate:
			allowed = true
		case ActionUpdateStatus:
			allowed = CanMutateStatus(actor, res.OwnerID)
		case ActionVerify:
			allowed = actor.Role == identity.RoleModerator || actor.IsAdmin()
		}
	case ObjectAccount:
		allowed = action == ActionAssignRole && actor.IsAdmin()
	case ObjectAudit:
		allowed = action == ActionRead && actor.IsAdmin()
	}

	if !allowed {
		return ErrForbidden
	}
	return nil
}
