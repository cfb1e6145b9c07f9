package report

import (
	"github.com/smallbiznis/floodwatch/internal/report/repository"
	"github.com/smallbiznis/floodwatch/internal/report/service"
	"go.uber.org/fx"
)

var Module = fx.Module("report.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
