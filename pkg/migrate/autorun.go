package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot, only in dev and only with
// RELIVV_AUTO_MIGRATE set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "sqlite driver, using gorm automigrate")
		return AutoMigrateModels(client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: sql handle: %w", err)
	}
	runner, err := NewRunner(sqlDB, Dialect(cfg.DB), nil, logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying embedded migrations (dev auto-run)")
	return runner.Up(ctx)
}
