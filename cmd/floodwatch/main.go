package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/migration"
	"github.com/smallbiznis/floodwatch/internal/observability"
	"github.com/smallbiznis/floodwatch/internal/scheduler"
	"github.com/smallbiznis/floodwatch/internal/server"
	"github.com/smallbiznis/floodwatch/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// schema and bootstrap admin must exist before routes serve traffic
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
