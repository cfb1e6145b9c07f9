package config

import "go.uber.org/fx"

// Module provides validated configuration. Startup fails when Validate does.
var Module = fx.Module("config",
	fx.Provide(
		provideConfig,
		NewReportPolicyHolder,
	),
)

func provideConfig() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
