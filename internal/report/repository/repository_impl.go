package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/report/domain"
	"github.com/smallbiznis/floodwatch/pkg/db/option"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"github.com/smallbiznis/floodwatch/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Report]
}

func New(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Report](db)}
}

func (r *repo) Create(ctx context.Context, report *domain.Report) error {
	return r.store.Create(ctx, report)
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Report, error) {
	report, err := r.store.FindOne(ctx, &domain.Report{ID: id})
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, domain.ErrReportNotFound
	}
	return report, nil
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Report, error) {
	query := &domain.Report{
		Status:       filter.Status,
		Severity:     filter.Severity,
		ReportedBy:   filter.ReportedBy,
		LocationSlug: filter.LocationSlug,
	}

	opts := []option.QueryOption{
		option.WithOrder("created_at desc, id desc"),
		option.ApplyPagination(page),
	}
	// struct filters skip false, so the flag needs an explicit clause
	if filter.Verified != nil {
		verified := *filter.Verified
		opts = append(opts, option.QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
			return db.Where("verified = ?", verified)
		}))
	}
	return r.store.Find(ctx, query, opts...)
}

func (r *repo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	affected, err := r.store.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}
