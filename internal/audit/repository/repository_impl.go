package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/pkg/db/option"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"github.com/smallbiznis/floodwatch/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.AuditLog]
}

func New(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.AuditLog](db)}
}

func (r *repo) Insert(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return r.store.Create(ctx, entry)
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter, page pagination.Pagination) ([]*domain.AuditLog, error) {
	query := &domain.AuditLog{
		Action:     strings.TrimSpace(filter.Action),
		TargetType: strings.TrimSpace(filter.TargetType),
	}

	opts := []option.QueryOption{
		option.WithOrder("created_at desc, id desc"),
		option.ApplyPagination(page),
	}
	if targetID := strings.TrimSpace(filter.TargetID); targetID != "" {
		opts = append(opts, where("target_id = ?", targetID))
	}
	if actorID := strings.TrimSpace(filter.ActorID); actorID != "" {
		opts = append(opts, where("actor_id = ?", actorID))
	}
	if filter.StartAt != nil {
		opts = append(opts, where("created_at >= ?", filter.StartAt.UTC()))
	}
	if filter.EndAt != nil {
		opts = append(opts, where("created_at <= ?", filter.EndAt.UTC()))
	}
	return r.store.Find(ctx, query, opts...)
}

func where(clause string, args ...any) option.QueryOption {
	return option.QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(clause, args...)
	})
}
