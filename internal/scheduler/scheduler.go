package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/floodwatch/internal/clock"
	obscontext "github.com/smallbiznis/floodwatch/internal/observability/context"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"github.com/smallbiznis/floodwatch/internal/ratelimit"
	twofactordomain "github.com/smallbiznis/floodwatch/internal/twofactor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JobPurgeChallenges = "purge_two_factor_challenges"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  Config            `optional:"true"`
	Locker  *ratelimit.Locker `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
}

// Scheduler runs periodic maintenance jobs. With redis configured, a lock
// per job keeps replicas from running the same job at once.
type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	locker  *ratelimit.Locker
	metrics *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		locker:  p.Locker,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobPurgeChallenges, s.PurgeChallenges)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	release, ok := s.lock(ctx, name)
	if !ok {
		s.metrics.RecordJobRun(ctx, name, "skipped")
		return nil
	}
	defer release()

	start := s.clock.Now()
	n, err := fn(ctx)
	if err != nil {
		s.metrics.RecordJobRun(ctx, name, "error")
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("job timed out", zap.String("job", name), zap.Duration("timeout", s.cfg.JobTimeout))
			return nil
		}
		return err
	}

	s.metrics.RecordJobRun(ctx, name, "ok")
	s.metrics.RecordRowsPurged(ctx, name, n)
	if n > 0 {
		s.log.Info("job finished",
			zap.String("job", name),
			zap.Int64("rows", n),
			zap.Duration("duration", s.clock.Now().Sub(start)),
		)
	}
	return nil
}

// lock returns ok=false only when another replica holds the job. Without
// redis every replica runs the job; the deletes are idempotent.
func (s *Scheduler) lock(ctx context.Context, name string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := "scheduler:" + name
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.JobTimeout)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running unlocked", zap.String("job", name), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("failed to release scheduler lock", zap.String("job", name), zap.Error(err))
		}
	}, true
}

// PurgeChallenges deletes two-factor challenges that expired or were used
// more than the retention period ago, a batch at a time.
func (s *Scheduler) PurgeChallenges(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.ChallengeRetention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var ids []string
		if err := s.db.WithContext(ctx).
			Model(&twofactordomain.Challenge{}).
			Where("expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)", cutoff, cutoff).
			Order("created_at").
			Limit(s.cfg.BatchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&twofactordomain.Challenge{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if len(ids) < s.cfg.BatchSize {
			return total, nil
		}
	}
}
