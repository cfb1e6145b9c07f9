package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type IssueRequest struct {
	AccountID snowflake.ID
	Email     string
	Name      string
}

type IssueResult struct {
	ChallengeID string
	ExpiresAt   time.Time
}

type Service interface {
	// Issue creates a challenge and emails its code to the account.
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
	// Verify consumes the challenge and returns the account it was issued for.
	Verify(ctx context.Context, challengeID string, code string) (snowflake.ID, error)
}
