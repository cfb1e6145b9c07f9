// Package domain contains core types for the account service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a registered community member.
type Account struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	Name             string       `gorm:"type:text;not null"`
	Email            string       `gorm:"type:varchar(320);not null;uniqueIndex"`
	PasswordHash     string       `gorm:"column:password_hash;type:text;not null"`
	Role             string       `gorm:"type:varchar(32);not null;default:user"`
	TwoFactorEnabled bool         `gorm:"column:two_factor_enabled;not null;default:false"`
	CreatedAt        time.Time    `gorm:"not null"`
	UpdatedAt        time.Time    `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Summary is the public view of an account. It never carries the password hash.
type Summary struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Profile is what the account owner sees about themselves.
type Profile struct {
	Summary
	Role             string `json:"role"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

func (a Account) Summary() Summary {
	return Summary{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

func (a Account) Profile() Profile {
	return Profile{
		Summary:          a.Summary(),
		Role:             a.Role,
		TwoFactorEnabled: a.TwoFactorEnabled,
	}
}
