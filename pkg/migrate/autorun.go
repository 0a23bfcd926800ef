package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations at startup, but only in the dev
// environment with STOREFRONT_AUTO_MIGRATE set. Everywhere else schema changes
// go through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	dialect := DialectFor(cfg.DB)
	if err := setDialect(dialect); err != nil {
		return err
	}
	from, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := UpEmbedded(ctx, sqlDB, dialect); err != nil {
		return err
	}
	to, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"dialect":      dialect,
		"from_version": from,
		"to_version":   to,
	}), "dev auto-migrate complete")
	return nil
}

// DialectFor maps the configured driver to a goose dialect.
func DialectFor(cfg config.DBConfig) string {
	if cfg.IsSQLite() {
		return DialectSQLite
	}
	return DialectPostgres
}
