package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
)

// SubmitRequest carries no reporter field; the reporter is always the caller.
type SubmitRequest struct {
	Severity    Severity `json:"severity" validate:"required,oneof=light moderate severe"`
	Location    string   `json:"location" validate:"required,max=200"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

type ListRequest struct {
	pagination.Pagination
	Status   Status   `form:"status"`
	Severity Severity `form:"severity"`
	Location string   `form:"location"`
	Mine     bool     `form:"mine"`
	Verified *bool    `form:"verified"`
}

type ListResponse struct {
	Reports  []*Report            `json:"reports"`
	PageInfo *pagination.PageInfo `json:"pageInfo"`
}

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Submit(ctx context.Context, actor identity.Identity, req SubmitRequest) (*Report, error)
	// List is public; actor only matters for the Mine filter.
	List(ctx context.Context, actor identity.Identity, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id snowflake.ID) (*Report, error)
	UpdateStatus(ctx context.Context, actor identity.Identity, id snowflake.ID, status Status) (*Report, error)
	Verify(ctx context.Context, actor identity.Identity, id snowflake.ID, verified bool) (*Report, error)
}
