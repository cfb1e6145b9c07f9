package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/password"
	"github.com/smallbiznis/floodwatch/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Log    *zap.Logger
	Repo   authdomain.Repository
	Hasher password.Hasher
	GenID  *snowflake.Node
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if err := Migrate(p.DB); err != nil {
			return err
		}
		return EnsureBootstrapAdmin(context.Background(), p.Config, p.Repo, p.Hasher, p.GenID, p.Log.Named("migration"))
	}),
)
