package authorization

import (
	"context"

	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("authorization",
	fx.Provide(NewPolicy),
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// NewPolicy selects the backend named by AUTHZ_BACKEND ("casbin" or "ownership").
func NewPolicy(p Params) (Policy, error) {
	var policy Policy = OwnershipPolicy{}
	if p.Config.AuthzBackend != "ownership" {
		enforcer, err := NewEnforcer(p.DB)
		if err != nil {
			return nil, err
		}
		policy = NewCasbinPolicy(p.Log, enforcer)
	}
	p.Log.Info("authorization policy ready", zap.String("backend", backendName(policy)))
	return &instrumented{next: policy, metrics: p.Metrics}, nil
}

func backendName(p Policy) string {
	if _, ok := p.(*CasbinPolicy); ok {
		return "casbin"
	}
	return "ownership"
}

type instrumented struct {
	next    Policy
	metrics *metrics.Metrics
}

func (i *instrumented) Authorize(ctx context.Context, actor identity.Identity, res Resource, action Action) error {
	err := i.next.Authorize(ctx, actor, res, action)
	if err != nil {
		i.metrics.RecordAuthorizationDenied(ctx, res.Type+"."+string(action))
	}
	return err
}

var _ Policy = (*CasbinPolicy)(nil)
