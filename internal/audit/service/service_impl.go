package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/internal/audit/masking"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/identity"
	obscontext "github.com/smallbiznis/floodwatch/internal/observability/context"
	"github.com/smallbiznis/floodwatch/internal/validation"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy authorization.Policy
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	policy authorization.Policy
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("audit.service"),
		repo:   p.Repo,
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) Record(ctx context.Context, entry domain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := masking.MaskJSON(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	actorType, actorID := resolveActor(ctx, entry.Actor)
	log := &domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if payload != nil {
		log.Metadata = datatypes.JSONMap(payload)
	}
	ip, userAgent := obscontext.ClientFromContext(ctx)
	log.IPAddress = optional(ip)
	log.UserAgent = optional(userAgent)

	if err := s.repo.Insert(ctx, log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor identity.Identity, req domain.ListRequest) (*domain.ListResponse, error) {
	if err := s.policy.Authorize(ctx, actor, authorization.AuditTrail(), authorization.ActionRead); err != nil {
		return nil, err
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return nil, domain.ErrInvalidTimeRange
	}
	if req.PageToken != "" {
		if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
			return nil, validation.New("page_token", "is invalid")
		}
	}

	page := req.Pagination
	if page.PageSize <= 0 {
		page.PageSize = defaultPageSize
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}

	items, err := s.repo.List(ctx, domain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
	}, page)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.PageSize, func(item *domain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}
	if items == nil {
		items = []*domain.AuditLog{}
	}

	return &domain.ListResponse{AuditLogs: items, PageInfo: pageInfo}, nil
}

func resolveActor(ctx context.Context, explicit snowflake.ID) (domain.ActorType, *string) {
	if explicit != 0 {
		return domain.ActorTypeAccount, optional(explicit.String())
	}
	if id, ok := identity.FromContext(ctx); ok && !id.IsZero() {
		return domain.ActorTypeAccount, optional(id.AccountID.String())
	}
	if kind, id := obscontext.ActorFromContext(ctx); kind != "" {
		return domain.ActorType(kind), optional(id)
	}
	return domain.ActorTypeSystem, nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
