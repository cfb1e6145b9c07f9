package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/identity"
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=6,max=72,maxbytes=72"`
}

type LoginRequest struct {
	Email    string
	Password string
}

type VerifyLoginRequest struct {
	ChallengeID string
	Code        string
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72,maxbytes=72"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// AuthResult is returned by signup and login. When ChallengeID is set the
// caller must complete a two-factor step and no token has been issued yet.
type AuthResult struct {
	Account     Summary
	Token       string
	ExpiresAt   time.Time
	ChallengeID string
}

func (r AuthResult) ChallengePending() bool {
	return r.ChallengeID != "" && r.Token == ""
}

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*AuthResult, error)
	Authenticate(ctx context.Context, rawToken string) (identity.Identity, error)
	Profile(ctx context.Context, id snowflake.ID) (*Profile, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (*Profile, error)
	ChangePassword(ctx context.Context, id snowflake.ID, req ChangePasswordRequest) error
	SetTwoFactor(ctx context.Context, id snowflake.ID, enabled bool) (*Profile, error)
	SetRole(ctx context.Context, actor identity.Identity, target snowflake.ID, role string) (*Profile, error)
}
