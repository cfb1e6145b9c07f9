package auth

import (
	"github.com/smallbiznis/floodwatch/internal/auth/password"
	"github.com/smallbiznis/floodwatch/internal/auth/repository"
	"github.com/smallbiznis/floodwatch/internal/auth/service"
	"github.com/smallbiznis/floodwatch/internal/auth/token"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(password.NewHasher),
	fx.Provide(newIssuer),
	fx.Provide(service.New),
)

func newIssuer(cfg config.Config, clk clock.Clock) (*token.Issuer, error) {
	return token.NewIssuer(cfg.AuthJWTSecret, cfg.AuthTokenTTL, clk)
}
