package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/internal/observability/metrics"
	"github.com/smallbiznis/floodwatch/internal/report/domain"
	"github.com/smallbiznis/floodwatch/internal/validation"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	GenID   *snowflake.Node
	Clock   clock.Clock
	Policy  authorization.Policy
	Config  *config.ReportPolicyHolder
	Metrics *metrics.Metrics   `optional:"true"`
	Audit   auditdomain.Service `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	policy  authorization.Policy
	config  *config.ReportPolicyHolder
	metrics *metrics.Metrics
	audit   auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("report.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		config:  p.Config,
		metrics: p.Metrics,
		audit:   p.Audit,
	}
}

func (s *Service) Submit(ctx context.Context, actor identity.Identity, req domain.SubmitRequest) (*domain.Report, error) {
	if err := s.policy.Authorize(ctx, actor, authorization.Report(actor.AccountID), authorization.ActionCreate); err != nil {
		return nil, err
	}

	req.Location = strings.TrimSpace(req.Location)
	req.Description = strings.TrimSpace(req.Description)
	req.Severity = domain.Severity(strings.ToLower(strings.TrimSpace(string(req.Severity))))
	if err := s.validateSubmit(req); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	report := &domain.Report{
		ID:           s.genID.Generate(),
		Severity:     req.Severity,
		Location:     req.Location,
		LocationSlug: slug.Make(req.Location),
		Description:  req.Description,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ReportedBy:   actor.AccountID,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.record(ctx, actor, auditdomain.ActionReportSubmitted, report.ID, map[string]any{
		"severity": string(report.Severity),
		"location": report.Location,
	})
	s.metrics.RecordReportSubmitted(ctx, string(report.Severity))
	s.log.Info("report submitted",
		zap.String("report_id", report.ID.String()),
		zap.String("reported_by", actor.AccountID.String()),
		zap.String("severity", string(report.Severity)),
	)
	return report, nil
}

func (s *Service) validateSubmit(req domain.SubmitRequest) error {
	verrs := &validation.Errors{}
	if err := validation.Struct(req); err != nil {
		found, ok := validation.As(err)
		if !ok {
			return err
		}
		verrs = found
	}

	maxLen := s.config.Get().MaxDescriptionLength
	if utf8.RuneCountInString(req.Description) > maxLen {
		verrs.Add("description", fmt.Sprintf("must be at most %d characters", maxLen))
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		field := "longitude"
		if req.Latitude == nil {
			field = "latitude"
		}
		verrs.Add(field, "latitude and longitude must be provided together")
	}
	return verrs.OrNil()
}

func (s *Service) List(ctx context.Context, actor identity.Identity, req domain.ListRequest) (*domain.ListResponse, error) {
	verrs := &validation.Errors{}
	if req.Mine && actor.IsZero() {
		verrs.Add("mine", "requires an authenticated caller")
	}
	if req.Status != "" && !req.Status.Valid() {
		verrs.Add("status", "must be one of active, resolved, false_report")
	}
	switch req.Severity {
	case "", domain.SeverityLight, domain.SeverityModerate, domain.SeveritySevere:
	default:
		verrs.Add("severity", "must be one of light, moderate, severe")
	}
	if req.PageToken != "" {
		if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
			verrs.Add("page_token", "is invalid")
		}
	}
	if err := verrs.OrNil(); err != nil {
		return nil, err
	}

	policy := s.config.Get()
	page := req.Pagination
	if page.PageSize <= 0 {
		page.PageSize = policy.DefaultPageSize
	}
	if page.PageSize > policy.MaxPageSize {
		page.PageSize = policy.MaxPageSize
	}

	filter := domain.ListFilter{
		Status:   req.Status,
		Severity: req.Severity,
		Verified: req.Verified,
	}
	if loc := strings.TrimSpace(req.Location); loc != "" {
		filter.LocationSlug = slug.Make(loc)
	}
	if req.Mine {
		filter.ReportedBy = actor.AccountID
	}

	items, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(r *domain.Report) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        r.ID.String(),
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}

	return &domain.ListResponse{Reports: items, PageInfo: pageInfo}, nil
}

// Get is public; reports carry nothing but the reporter's id.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Report, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateStatus checks existence, then ownership, then the requested value.
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Identity, id snowflake.ID, status domain.Status) (*domain.Report, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.policy.Authorize(ctx, actor, authorization.Report(report.ReportedBy), authorization.ActionUpdateStatus); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			s.log.Info("status change denied",
				zap.String("report_id", id.String()),
				zap.String("actor_id", actor.AccountID.String()),
			)
		}
		return nil, err
	}

	status = domain.Status(strings.TrimSpace(string(status)))
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"status":     status,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	s.record(ctx, actor, auditdomain.ActionReportStatusChanged, id, map[string]any{
		"from": string(report.Status),
		"to":   string(status),
	})
	s.metrics.RecordStatusChange(ctx, string(status))
	report.Status = status
	report.UpdatedAt = now
	return report, nil
}

func (s *Service) Verify(ctx context.Context, actor identity.Identity, id snowflake.ID, verified bool) (*domain.Report, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, actor, authorization.Report(report.ReportedBy), authorization.ActionVerify); err != nil {
		return nil, err
	}

	var verifiedBy *snowflake.ID
	if verified {
		by := actor.AccountID
		verifiedBy = &by
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateFields(ctx, id, map[string]any{
		"verified":    verified,
		"verified_by": verifiedBy,
		"updated_at":  now,
	}); err != nil {
		return nil, err
	}

	s.record(ctx, actor, auditdomain.ActionReportVerified, id, map[string]any{
		"verified": verified,
	})
	report.Verified = verified
	report.VerifiedBy = verifiedBy
	report.UpdatedAt = now
	return report, nil
}

// record writes an audit entry. Failures are logged by the audit service
// and never fail the change itself.
func (s *Service) record(ctx context.Context, actor identity.Identity, action string, id snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, auditdomain.Entry{
		Actor:      actor.AccountID,
		Action:     action,
		TargetType: auditdomain.TargetReport,
		TargetID:   id.String(),
		Metadata:   metadata,
	})
}
