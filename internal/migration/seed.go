package migration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/floodwatch/internal/auth/domain"
	"github.com/smallbiznis/floodwatch/internal/auth/password"
	"github.com/smallbiznis/floodwatch/internal/config"
	"github.com/smallbiznis/floodwatch/internal/identity"
	"go.uber.org/zap"
)

// EnsureBootstrapAdmin creates the configured admin account if it does not
// exist yet. Existing accounts are left untouched.
func EnsureBootstrapAdmin(ctx context.Context, cfg config.Config, repo authdomain.Repository, hasher password.Hasher, genID *snowflake.Node, log *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminEmail))
	if email == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	if _, err := repo.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, authdomain.ErrAccountNotFound) {
		return err
	}

	hashed, err := hasher.Hash(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := &authdomain.Account{
		ID:           genID.Generate(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hashed,
		Role:         identity.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, admin); err != nil {
		return err
	}

	log.Info("bootstrap admin created", zap.String("account_id", admin.ID.String()))
	return nil
}
