package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
)

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type Repository interface {
	Insert(ctx context.Context, entry *AuditLog) error
	List(ctx context.Context, filter ListFilter, page pagination.Pagination) ([]*AuditLog, error)
}
