// Package driver opens the store selected by STORE_DRIVER.
package driver

import (
	"context"
	"fmt"

	"github.com/kiwari-pos/floorops/internal/config"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/store/mongostore"
	"github.com/kiwari-pos/floorops/internal/store/pgstore"
	"go.uber.org/zap"
)

// Open returns the configured store. Postgres schemas are migrated before the
// pool is opened.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case enum.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case enum.StorePostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("connected to postgres")
		return st, nil
	case enum.StoreMongo:
		st, err := mongostore.Open(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		log.Info("connected to mongodb", zap.String("database", cfg.MongoDB))
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
