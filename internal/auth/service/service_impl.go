package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/password"
	"github.com/smallbiznis/floodwatch/internal/auth/token"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"github.com/smallbiznis/floodwatch/internal/providers/email"
	"github.com/smallbiznis/floodwatch/internal/ratelimit"
	twofactordomain "github.com/smallbiznis/floodwatch/internal/twofactor/domain"
	"github.com/smallbiznis/floodwatch/internal/validation"
	"github.com/smallbiznis/floodwatch/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       domain.Repository
	Hasher     password.Hasher
	Issuer     *token.Issuer
	GenID      *snowflake.Node
	Clock      clock.Clock
	TwoFactor  twofactordomain.Service
	Policy     authorization.Policy
	SignupLock *ratelimit.SignupLock `optional:"true"`
	Email      email.Provider        `optional:"true"`
	Metrics    *metrics.Metrics      `optional:"true"`
	Audit      auditdomain.Service   `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       domain.Repository
	hasher     password.Hasher
	issuer     *token.Issuer
	genID      *snowflake.Node
	clock      clock.Clock
	twoFactor  twofactordomain.Service
	policy     authorization.Policy
	signupLock *ratelimit.SignupLock
	email      email.Provider
	metrics    *metrics.Metrics
	audit      auditdomain.Service

	dummyOnce sync.Once
	dummyHash string
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("auth.service"),
		repo:       p.Repo,
		hasher:     p.Hasher,
		issuer:     p.Issuer,
		genID:      p.GenID,
		clock:      p.Clock,
		twoFactor:  p.TwoFactor,
		policy:     p.Policy,
		signupLock: p.SignupLock,
		email:      p.Email,
		metrics:    p.Metrics,
		audit:      p.Audit,
	}
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, validation.New("email", "must be a valid email address")
	}

	release, ok, err := s.signupLock.Acquire(ctx, emailAddr)
	if err != nil {
		s.log.Warn("signup lock unavailable, continuing without it", zap.Error(err))
	} else if !ok {
		return nil, domain.ErrSignupInProgress
	}
	defer release()

	if _, err := s.repo.FindByEmail(ctx, emailAddr); err == nil {
		return nil, domain.ErrAccountExists
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAccountCreation, err)
	}

	now := s.clock.Now().UTC()
	account := &domain.Account{
		ID:           s.genID.Generate(),
		Name:         req.Name,
		Email:        emailAddr,
		PasswordHash: hashed,
		Role:         identity.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Info("concurrent signup lost the insert race", zap.String("account_id", account.ID.String()))
			return nil, domain.ErrAccountCreation
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAccountCreation, err)
	}

	result, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	s.record(ctx, account.ID, auditdomain.ActionAccountSignup, account.ID, map[string]any{
		"email": account.Email,
	})
	s.metrics.RecordSignup(ctx)
	s.sendWelcome(ctx, account)
	return result, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	emailAddr, err := normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		s.burnHash(req.Password)
		s.metrics.RecordLogin(ctx, "failure")
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.repo.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.burnHash(req.Password)
			s.metrics.RecordLogin(ctx, "failure")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		s.metrics.RecordLogin(ctx, "failure")
		return nil, domain.ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		challenge, err := s.twoFactor.Issue(ctx, twofactordomain.IssueRequest{
			AccountID: account.ID,
			Email:     account.Email,
			Name:      account.Name,
		})
		if err != nil {
			return nil, err
		}
		s.metrics.RecordLogin(ctx, "challenge")
		return &domain.AuthResult{
			Account:     account.Summary(),
			ChallengeID: challenge.ChallengeID,
			ExpiresAt:   challenge.ExpiresAt,
		}, nil
	}

	s.metrics.RecordLogin(ctx, "success")
	return s.issue(account)
}

func (s *Service) VerifyLogin(ctx context.Context, req domain.VerifyLoginRequest) (*domain.AuthResult, error) {
	accountID, err := s.twoFactor.Verify(ctx, req.ChallengeID, req.Code)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	s.metrics.RecordLogin(ctx, "success")
	return s.issue(account)
}

// Authenticate resolves a bearer token to the caller. The role is read from
// the store so role changes apply to tokens that are already issued.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (identity.Identity, error) {
	claims, err := s.issuer.Verify(rawToken)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	accountID, err := snowflake.ParseString(claims.AccountID)
	if err != nil || accountID == 0 {
		return identity.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, token.ErrInvalidToken)
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return identity.Identity{}, domain.ErrUnauthenticated
		}
		return identity.Identity{}, err
	}

	return identity.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	}, nil
}

func (s *Service) Profile(ctx context.Context, id snowflake.ID) (*domain.Profile, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := account.Profile()
	return &profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"name":       req.Name,
		"updated_at": s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	return s.Profile(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, id snowflake.ID, req domain.ChangePasswordRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}

	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.CurrentPassword, account.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now().UTC(),
	}); err != nil {
		return err
	}

	s.record(ctx, id, auditdomain.ActionAccountPasswordChanged, id, nil)
	return nil
}

func (s *Service) SetTwoFactor(ctx context.Context, id snowflake.ID, enabled bool) (*domain.Profile, error) {
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"two_factor_enabled": enabled,
		"updated_at":         s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	s.record(ctx, id, auditdomain.ActionAccountTwoFactorSet, id, map[string]any{"enabled": enabled})
	return s.Profile(ctx, id)
}

func (s *Service) SetRole(ctx context.Context, actor identity.Identity, target snowflake.ID, role string) (*domain.Profile, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !identity.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}
	if err := s.policy.Authorize(ctx, actor, authorization.Account(target), authorization.ActionAssignRole); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateFields(ctx, target, map[string]any{
		"role":       role,
		"updated_at": s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	s.record(ctx, actor.AccountID, auditdomain.ActionAccountRoleChanged, target, map[string]any{"role": role})
	s.log.Info("account role changed",
		zap.String("actor_id", actor.AccountID.String()),
		zap.String("account_id", target.String()),
		zap.String("role", role),
	)
	return s.Profile(ctx, target)
}

func (s *Service) issue(account *domain.Account) (*domain.AuthResult, error) {
	tok, err := s.issuer.Issue(account.ID.String(), account.Email)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{
		Account:   account.Summary(),
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// burnHash spends the same bcrypt work as a real comparison so unknown
// emails cannot be told apart by response time.
func (s *Service) burnHash(plaintext string) {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash("floodwatch-timing-equalizer")
		if err != nil {
			s.log.Warn("failed to prepare timing hash", zap.Error(err))
			return
		}
		s.dummyHash = hashed
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(plaintext, s.dummyHash)
	}
}

func (s *Service) record(ctx context.Context, actor snowflake.ID, action string, target snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor,
		Action:     action,
		TargetType: auditdomain.TargetAccount,
		TargetID:   target.String(),
		Metadata:   metadata,
	})
}

func (s *Service) sendWelcome(ctx context.Context, account *domain.Account) {
	if s.email == nil {
		return
	}
	if err := s.email.SendTemplate(ctx, []string{account.Email}, "welcome", map[string]any{
		"name": account.Name,
	}); err != nil {
		s.log.Warn("failed to send welcome email",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
	}
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("email is empty")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", errors.New("email is invalid")
	}
	return strings.ToLower(addr.Address), nil
}
