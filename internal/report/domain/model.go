// Package domain contains core types for flood reports.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusResolved    Status = "resolved"
	StatusFalseReport Status = "false_report"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusFalseReport:
		return true
	default:
		return false
	}
}

// Report is a single flooding observation.
type Report struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Severity     Severity      `gorm:"type:varchar(16);not null;index" json:"severity"`
	Location     string        `gorm:"type:text;not null" json:"location"`
	LocationSlug string        `gorm:"type:varchar(200);not null;index" json:"locationSlug"`
	Description  string        `gorm:"type:text" json:"description,omitempty"`
	Latitude     *float64      `json:"latitude,omitempty"`
	Longitude    *float64      `json:"longitude,omitempty"`
	ReportedBy   snowflake.ID  `gorm:"not null;index" json:"reportedBy"`
	Status       Status        `gorm:"type:varchar(16);not null;default:active;index" json:"status"`
	Verified     bool          `gorm:"not null;default:false" json:"verified"`
	VerifiedBy   *snowflake.ID `json:"verifiedBy,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;index" json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updatedAt"`
}

func (Report) TableName() string { return "reports" }
