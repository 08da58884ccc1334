package migrate

import (
	"context"
	"fmt"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot, but only for dev with the AutoMigrate flag on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: unwrap sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	results, err := runner.Up(ctx)
	for _, res := range results {
		logg.Debug(logg.WithFields(ctx, map[string]any{
			"version":     res.Version,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration.applied")
	}
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "migration.auto_run_complete")
	return nil
}
