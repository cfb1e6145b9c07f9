package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"github.com/smallbiznis/floodwatch/internal/providers/email"
	"github.com/smallbiznis/floodwatch/internal/twofactor/domain"
	"github.com/smallbiznis/floodwatch/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	codeTTL     = 5 * time.Minute
	maxAttempts = 5
	issuer      = "Floodwatch"
)

var codeOpts = totp.ValidateOpts{
	Period:    uint(codeTTL / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type Params struct {
	fx.In

	Log     *zap.Logger
	DB      *gorm.DB
	Clock   clock.Clock
	Email   email.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    repository.Repository[domain.Challenge]
	clock   clock.Clock
	email   email.Provider
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("twofactor.service"),
		repo:    repository.ProvideStore[domain.Challenge](p.DB),
		clock:   p.Clock,
		email:   p.Email,
		metrics: p.Metrics,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: req.Email,
		Period:      codeOpts.Period,
		Digits:      codeOpts.Digits,
		Algorithm:   codeOpts.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	challenge := &domain.Challenge{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Secret:    key.Secret(),
		ExpiresAt: now.Add(codeTTL),
		CreatedAt: now,
	}

	code, err := totp.GenerateCodeCustom(challenge.Secret, challenge.CreatedAt, codeOpts)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, err
	}

	err = s.email.SendTemplate(ctx, []string{req.Email}, "two_factor_code", map[string]any{
		"name":               req.Name,
		"code":               code,
		"expires_in_minutes": int(codeTTL / time.Minute),
	})
	if err != nil {
		s.log.Error("failed to send two-factor code",
			zap.String("challenge_id", challenge.ID),
			zap.String("account_id", req.AccountID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordTwoFactorIssued(ctx)
	return &domain.IssueResult{ChallengeID: challenge.ID, ExpiresAt: challenge.ExpiresAt}, nil
}

func (s *Service) Verify(ctx context.Context, challengeID string, code string) (snowflake.ID, error) {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" {
		return 0, domain.ErrChallengeNotFound
	}

	challenge, err := s.repo.FindOne(ctx, &domain.Challenge{ID: challengeID})
	if err != nil {
		return 0, err
	}
	if challenge == nil || challenge.Consumed() {
		s.metrics.RecordTwoFactorVerified(ctx, "not_found")
		return 0, domain.ErrChallengeNotFound
	}

	now := s.clock.Now().UTC()
	if challenge.Expired(now) {
		s.metrics.RecordTwoFactorVerified(ctx, "expired")
		return 0, domain.ErrChallengeExpired
	}

	ok, err := totp.ValidateCustom(code, challenge.Secret, challenge.CreatedAt, codeOpts)
	if err != nil || !ok {
		fields := map[string]any{"attempts": challenge.Attempts + 1}
		if challenge.Attempts+1 >= maxAttempts {
			fields["consumed_at"] = now
		}
		if _, err := s.repo.Update(ctx, challenge.ID, fields); err != nil {
			return 0, err
		}
		s.metrics.RecordTwoFactorVerified(ctx, "invalid")
		return 0, domain.ErrInvalidCode
	}

	if _, err := s.repo.Update(ctx, challenge.ID, map[string]any{"consumed_at": now}); err != nil {
		return 0, err
	}

	s.metrics.RecordTwoFactorVerified(ctx, "success")
	return challenge.AccountID, nil
}
