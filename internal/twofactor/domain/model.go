package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Challenge is a pending second login step. The code itself is never stored;
// it is derived from Secret and CreatedAt.
type Challenge struct {
	ID         string       `gorm:"type:varchar(36);primaryKey"`
	AccountID  snowflake.ID `gorm:"not null;index"`
	Secret     string       `gorm:"type:varchar(64);not null"`
	Attempts   int          `gorm:"not null;default:0"`
	ExpiresAt  time.Time    `gorm:"not null"`
	ConsumedAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (Challenge) TableName() string { return "two_factor_challenges" }

func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c Challenge) Consumed() bool {
	return c.ConsumedAt != nil
}
