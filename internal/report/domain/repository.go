package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
)

// ListFilter narrows a listing. Zero values match everything.
type ListFilter struct {
	Status       Status
	Severity     Severity
	ReportedBy   snowflake.ID
	LocationSlug string
	Verified     *bool
}

type Repository interface {
	Create(ctx context.Context, report *Report) error
	FindByID(ctx context.Context, id snowflake.ID) (*Report, error)
	List(ctx context.Context, filter ListFilter, page pagination.Pagination) ([]*Report, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}
