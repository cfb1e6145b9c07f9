package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks

// Entry describes a change to record. Client details come from the request
// context, and so does the actor when Actor is zero.
type Entry struct {
	Actor      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	pagination.Pagination
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	ActorID    string     `form:"actor_id"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListResponse struct {
	AuditLogs []*AuditLog          `json:"auditLogs"`
	PageInfo  *pagination.PageInfo `json:"pageInfo"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, actor identity.Identity, req ListRequest) (*ListResponse, error)
}
