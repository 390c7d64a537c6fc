package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"roamio/internal/config"
	"roamio/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted in DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// ListedPagesView is the discovery view over page_stats and trips.
const ListedPagesView = "publicly_listed_pages"

// listedPagesViewBody must stay in sync with migrations/000001_init_schema.up.sql.
const listedPagesViewBody = `SELECT ps.id, ps.page, ps.views, ps.likes, ps.checked_in, ps.owner_id, ps.listed,
       ps.created_at, ps.updated_at, t.id AS trip_id, t.title AS trip_title, t.description AS trip_description
FROM page_stats ps
LEFT JOIN trips t ON t.slug = ps.page
WHERE ps.listed = TRUE AND (t.id IS NULL OR t.visibility = 'public')`

var prodLikeEnvs = []string{"production", "prod", "staging", "stage"}

// schemaPlan says which schema steps a configuration runs.
type schemaPlan struct {
	mode string
	sql  bool
	auto bool
	// destructive is set when auto-migration was explicitly allowed in a prod-like env.
	destructive bool
}

func planSchema(cfg *config.Config) (schemaPlan, error) {
	plan := schemaPlan{mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))}
	if plan.mode == "" {
		plan.mode = SchemaModeHybrid
	}
	if !slices.Contains([]string{SchemaModeSQL, SchemaModeHybrid, SchemaModeAuto}, plan.mode) {
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.mode)
	}

	// The embedded SQL targets PostgreSQL; SQLite databases are always auto-migrated.
	if driverName(cfg) == "sqlite" {
		plan.auto = true
		return plan, nil
	}

	prodLike := slices.Contains(prodLikeEnvs, strings.ToLower(strings.TrimSpace(cfg.Env)))
	switch plan.mode {
	case SchemaModeSQL:
		plan.sql = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.auto = true
		plan.destructive = prodLike
	default:
		plan.sql = true
		plan.auto = !prodLike
	}
	return plan, nil
}

// ApplySchema brings the database up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.sql {
		if _, err := NewMigrator(db).Up(ctx); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.auto {
		return nil
	}

	if plan.destructive {
		middleware.Logger.Warn("auto-migrating a production-like database; review schema diffs first",
			slog.String("env", cfg.Env))
	}
	middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", plan.mode), slog.String("env", cfg.Env))
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return ensureViews(tx)
}

// ensureViews (re)creates the derived views that AutoMigrate does not know about.
func ensureViews(db *gorm.DB) error {
	create := "CREATE OR REPLACE VIEW "
	if db.Dialector.Name() == "sqlite" {
		create = "CREATE VIEW IF NOT EXISTS "
	}
	if err := db.Exec(create + ListedPagesView + " AS " + listedPagesViewBody).Error; err != nil {
		return fmt.Errorf("create view %s: %w", ListedPagesView, err)
	}
	return nil
}

// SchemaStatus reports what ApplySchema would do and, for SQL modes, which
// migrations are applied or pending.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// GetSchemaStatus inspects the database without changing it.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{
		Mode:               plan.mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.sql,
		WillRunAutoMigrate: plan.auto,
	}
	if !plan.sql {
		return status, nil
	}

	m := NewMigrator(db)
	if status.AppliedVersions, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.PendingMigrations, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
