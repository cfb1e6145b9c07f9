package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeAccount ActorType = "account"
	ActorTypeSystem  ActorType = "system"
)

const (
	ActionAccountSignup          = "account.signup"
	ActionAccountPasswordChanged = "account.password_changed"
	ActionAccountTwoFactorSet    = "account.two_factor_updated"
	ActionAccountRoleChanged     = "account.role_changed"
	ActionReportSubmitted        = "report.submitted"
	ActionReportStatusChanged    = "report.status_changed"
	ActionReportVerified         = "report.verification_changed"
)

const (
	TargetAccount = "account"
	TargetReport  = "report"
)

// AuditLog is one recorded state change. Rows are append-only.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:varchar(32);not null" json:"actorType"`
	ActorID    *string           `gorm:"type:varchar(64)" json:"actorId,omitempty"`
	Action     string            `gorm:"type:varchar(64);not null;index" json:"action"`
	TargetType string            `gorm:"type:varchar(32);not null" json:"targetType"`
	TargetID   *string           `gorm:"type:varchar(64);index" json:"targetId,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"userAgent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }
