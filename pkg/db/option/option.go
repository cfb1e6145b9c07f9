package option

import (
	"strconv"
	"time"

	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOrder(order string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if order == "" {
			return db
		}
		return db.Order(order)
	})
}

// ApplyPagination seeks past the page token cursor and fetches one extra row
// so callers can tell whether another page exists. Rows must be ordered by
// created_at desc, id desc.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor.CreatedAt != "" && cursor.ID != "" {
				createdAt, timeErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
				id, idErr := strconv.ParseInt(cursor.ID, 10, 64)
				if timeErr == nil && idErr == nil {
					db = db.Where("((created_at < ?) OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
				}
			}
		}
		if page.PageSize > 0 {
			db = db.Limit(page.PageSize + 1)
		}
		return db
	})
}
