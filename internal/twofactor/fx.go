package twofactor

import (
	"github.com/smallbiznis/floodwatch/internal/twofactor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("twofactor.service",
	fx.Provide(service.New),
)
