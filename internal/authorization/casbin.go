package authorization

import (
	"context"
	_ "embed"
	"strconv"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	scopeAny = "any"
	scopeOwn = "own"
)

func roleSubject(role string) string {
	return "role:" + role
}

var defaultPolicies = [][]string{
	{roleSubject(identity.RoleUser), ObjectReport, string(ActionCreate), scopeAny},
	{roleSubject(identity.RoleUser), ObjectReport, string(ActionUpdateStatus), scopeOwn},

	{roleSubject(identity.RoleModerator), ObjectReport, string(ActionVerify), scopeAny},

	{roleSubject(identity.RoleAdmin), ObjectReport, string(ActionUpdateStatus), scopeAny},
	{roleSubject(identity.RoleAdmin), ObjectAccount, string(ActionAssignRole), scopeAny},
	{roleSubject(identity.RoleAdmin), ObjectAudit, string(ActionRead), scopeAny},
}

// Each role inherits everything the role after it may do.
var defaultGroupings = [][]string{
	{roleSubject(identity.RoleAdmin), roleSubject(identity.RoleModerator)},
	{roleSubject(identity.RoleModerator), roleSubject(identity.RoleUser)},
}

// NewEnforcer loads the role model with policies stored in casbin_rule,
// seeding the defaults on first use.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, policy := range defaultPolicies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	for _, grouping := range defaultGroupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}

// CasbinPolicy evaluates requests against the stored casbin rules so
// operators can change grants without a deploy.
type CasbinPolicy struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewCasbinPolicy(log *zap.Logger, enforcer *casbin.SyncedEnforcer) *CasbinPolicy {
	return &CasbinPolicy{
		log:      log.Named("authorization.casbin"),
		enforcer: enforcer,
	}
}

func (p *CasbinPolicy) Authorize(ctx context.Context, actor identity.Identity, res Resource, action Action) error {
	if actor.IsZero() || !identity.ValidRole(actor.Role) {
		return ErrForbidden
	}

	allowed, err := p.enforcer.Enforce(
		roleSubject(actor.Role),
		res.Type,
		string(action),
		strconv.FormatBool(Owns(actor, res)),
	)
	if err != nil {
		p.log.Error("casbin enforce failed",
			zap.String("object", res.Type),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}
