package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scope selects which bucket a request draws from.
type Scope string

const (
	ScopeAuth   Scope = "auth"
	ScopeSubmit Scope = "submit"
)

const signupLockTTL = 10 * time.Second

type LimiterParams struct {
	fx.In

	Log     *zap.Logger
	Bucket  *TokenBucket `optional:"true"`
	Policy  *config.ReportPolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
}

// Limiter applies the configured per-scope buckets. A limiter without a
// bucket allows everything.
type Limiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	policy  *config.ReportPolicyHolder
	metrics *metrics.Metrics
}

func NewLimiter(p LimiterParams) *Limiter {
	return &Limiter{
		log:     p.Log.Named("ratelimit"),
		bucket:  p.Bucket,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow charges one token for subject in scope. Redis failures fail open.
func (l *Limiter) Allow(ctx context.Context, scope Scope, subject string) *Result {
	limit := l.limitFor(scope)
	if !l.Enabled() {
		return &Result{Allowed: true, Limit: limit.Burst, Remaining: limit.Burst}
	}

	key := fmt.Sprintf("ratelimit:%s:%s", scope, strings.TrimSpace(subject))
	res, err := l.bucket.Allow(ctx, key, limit.Rate, limit.Burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request",
			zap.String("scope", string(scope)),
			zap.Error(err),
		)
		l.metrics.RecordRateLimitDenied(ctx, string(scope), "backend_error")
		return &Result{Allowed: true, Limit: limit.Burst}
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, string(scope))
	} else {
		l.metrics.RecordRateLimitDenied(ctx, string(scope), "exhausted")
	}
	return res
}

func (l *Limiter) limitFor(scope Scope) config.RateLimit {
	var policy config.ReportPolicy
	if l != nil {
		policy = l.policy.Get()
	} else {
		policy = config.DefaultReportPolicy()
	}
	if scope == ScopeSubmit {
		return policy.SubmitRateLimit
	}
	return policy.AuthRateLimit
}

// SignupLock serializes signups per email across instances.
type SignupLock struct {
	locker *Locker
}

func NewSignupLock(locker *Locker) *SignupLock {
	return &SignupLock{locker: locker}
}

// Acquire returns a release func. Without redis it always succeeds.
func (s *SignupLock) Acquire(ctx context.Context, email string) (func(), bool, error) {
	if s == nil || s.locker == nil {
		return func() {}, true, nil
	}

	key := "signup:" + email
	token, ok, err := s.locker.TryLock(ctx, key, signupLockTTL)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return func() {
		_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
	}, true, nil
}
