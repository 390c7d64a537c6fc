// Package bootstrap connects the runtime dependencies shared by the server and tools.
package bootstrap

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"roamio/internal/cache"
	"roamio/internal/config"
	"roamio/internal/database"
	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedLegacyPages bool
}

// InitRuntime connects to DB and Redis and optionally ensures the legacy pages.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevRootAdmin(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedLegacyPages {
		if err := seed.SeedLegacyPages(context.Background(), db, false); err != nil {
			return nil, nil, fmt.Errorf("failed to seed legacy pages: %w", err)
		}
	}

	return db, r, nil
}

// rootAdmin is the development administrator described by DEV_ROOT_* settings.
type rootAdmin struct {
	username string
	email    string
	hash     string
	force    bool
}

func rootAdminFromConfig(cfg *config.Config) (*rootAdmin, error) {
	if cfg.DevRootPassword == "" {
		return nil, fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash root password: %w", err)
	}
	return &rootAdmin{
		username: cmp.Or(strings.TrimSpace(cfg.DevRootUsername), "roamio_root"),
		email:    cmp.Or(strings.ToLower(strings.TrimSpace(cfg.DevRootEmail)), "root@roamio.local"),
		hash:     string(hash),
		force:    cfg.DevRootForceCredentials,
	}, nil
}

// ensureDevRootAdmin creates or promotes the development root account. It is
// a no-op outside development or when DEV_BOOTSTRAP_ROOT is off.
func ensureDevRootAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil || !cfg.DevBootstrapRoot || !strings.EqualFold(cfg.Env, "development") {
		return nil
	}
	root, err := rootAdminFromConfig(cfg)
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Where("username = ?", root.username).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.User{
				Username: root.username,
				Email:    &root.email,
				Password: root.hash,
				IsAdmin:  true,
				IsActive: true,
				Profile:  &models.UserProfile{},
			}).Error
		}
		if err != nil {
			return err
		}
		updates := map[string]any{"is_admin": true, "is_active": true}
		if root.force {
			updates["email"] = root.email
			updates["password"] = root.hash
		}
		return tx.Model(&existing).Updates(updates).Error
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("development root admin ensured",
		slog.String("username", root.username),
		slog.String("email", root.email),
	)
	return nil
}
