package scheduler

import (
	"time"

	"github.com/smallbiznis/floodwatch/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// Challenges stay this long after expiring or being used.
	ChallengeRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		BatchSize:          500,
		JobTimeout:         30 * time.Second,
		ChallengeRetention: time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{RunInterval: cfg.SchedulerInterval}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ChallengeRetention <= 0 {
		c.ChallengeRetention = defaults.ChallengeRetention
	}
	return c
}
