package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReportPolicy holds runtime knobs for report intake that can change without a restart.
type ReportPolicy struct {
	MaxDescriptionLength int       `mapstructure:"maxDescriptionLength"`
	DefaultPageSize      int       `mapstructure:"defaultPageSize"`
	MaxPageSize          int       `mapstructure:"maxPageSize"`
	AuthRateLimit        RateLimit `mapstructure:"authRateLimit"`
	SubmitRateLimit      RateLimit `mapstructure:"submitRateLimit"`
}

// RateLimit is a token bucket refill rate (per second) and burst size.
type RateLimit struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

func DefaultReportPolicy() ReportPolicy {
	return ReportPolicy{
		MaxDescriptionLength: 1000,
		DefaultPageSize:      20,
		MaxPageSize:          100,
		AuthRateLimit:        RateLimit{Rate: 0.2, Burst: 10},
		SubmitRateLimit:      RateLimit{Rate: 0.1, Burst: 5},
	}
}

type ReportPolicyHolder struct {
	current atomic.Value // holds ReportPolicy
}

// NewStaticReportPolicyHolder returns a holder that never reloads.
func NewStaticReportPolicyHolder(policy ReportPolicy) *ReportPolicyHolder {
	holder := &ReportPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewReportPolicyHolder(cfg Config, log *zap.Logger) (*ReportPolicyHolder, error) {
	log = log.Named("config.report_policy")
	v := viper.New()

	if cfg.ReportPolicyPath != "" {
		v.SetConfigFile(cfg.ReportPolicyPath)
	} else {
		v.SetConfigName("report_policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/floodwatch")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReportPolicy()
	v.SetDefault("reports.maxDescriptionLength", defaults.MaxDescriptionLength)
	v.SetDefault("reports.defaultPageSize", defaults.DefaultPageSize)
	v.SetDefault("reports.maxPageSize", defaults.MaxPageSize)
	v.SetDefault("reports.authRateLimit.rate", defaults.AuthRateLimit.Rate)
	v.SetDefault("reports.authRateLimit.burst", defaults.AuthRateLimit.Burst)
	v.SetDefault("reports.submitRateLimit.rate", defaults.SubmitRateLimit.Rate)
	v.SetDefault("reports.submitRateLimit.burst", defaults.SubmitRateLimit.Burst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy ReportPolicy
	if err := v.UnmarshalKey("reports", &policy); err != nil {
		return nil, err
	}
	if err := validateReportPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticReportPolicyHolder(policy)
	if !fileLoaded {
		log.Info("report policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReportPolicy
		if err := v.UnmarshalKey("reports", &updated); err != nil {
			log.Warn("report policy reload failed", zap.Error(err))
			return
		}
		if err := validateReportPolicy(updated); err != nil {
			log.Warn("invalid report policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("report policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ReportPolicyHolder) Get() ReportPolicy {
	if h == nil {
		return DefaultReportPolicy()
	}
	return h.current.Load().(ReportPolicy)
}

func validateReportPolicy(p ReportPolicy) error {
	if p.MaxDescriptionLength <= 0 {
		return errors.New("reports.maxDescriptionLength must be positive")
	}
	if p.DefaultPageSize <= 0 || p.MaxPageSize <= 0 {
		return errors.New("reports page sizes must be positive")
	}
	if p.DefaultPageSize > p.MaxPageSize {
		return errors.New("reports.defaultPageSize cannot exceed reports.maxPageSize")
	}
	if p.AuthRateLimit.Rate <= 0 || p.AuthRateLimit.Burst <= 0 {
		return errors.New("reports.authRateLimit must be positive")
	}
	if p.SubmitRateLimit.Rate <= 0 || p.SubmitRateLimit.Burst <= 0 {
		return errors.New("reports.submitRateLimit must be positive")
	}
	return nil
}
