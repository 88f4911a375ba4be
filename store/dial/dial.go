// Package dial opens the store backend named by a config.StoreConfig.
package dial

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xraph/reckon/config"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/store/memory"
	"github.com/xraph/reckon/store/mongo"
	"github.com/xraph/reckon/store/sqlstore"
)

// Open returns the store for cfg.Driver. The caller owns the store and must
// Close it.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "", config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		s, err := sqlstore.OpenPostgres(cfg.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlstore.OpenSQLite(cfg.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMongo:
		s, err := mongo.Connect(ctx, cfg.DSN, cfg.Database, mongo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("dial: unknown store driver %q", cfg.Driver)
	}
}
