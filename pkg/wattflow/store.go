package wattflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/suhail953/wattflow/internal/adapters/store/badger"
	"github.com/suhail953/wattflow/internal/adapters/store/mongodb"
	"github.com/suhail953/wattflow/internal/adapters/store/postgres"
	"github.com/suhail953/wattflow/internal/ports"
)

// OpenStore opens the backend named by cfg.Store.Driver.
//
// Network stores that cannot be reached at startup are returned together
// with the error, marked disconnected, so the service can start and recover
// once the database comes back. A nil store means the backend could not be
// set up at all.
func OpenStore(ctx context.Context, cfg *Config) (Store, error) {
	return openStore(ctx, cfg, slog.Default())
}

func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (ports.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	defer cancel()

	switch cfg.Store.Driver {
	case DriverMongo:
		s, err := mongodb.Connect(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database, cfg.Store.Mongo.Collection)
		if s == nil {
			return nil, err
		}
		return s, err
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Store.Postgres.ConnString, cfg.Store.Postgres.Table)
		if s == nil {
			return nil, err
		}
		return s, err
	case DriverBadger:
		s, err := badger.Open(badger.Config{
			Path:     cfg.Store.Badger.Path,
			InMemory: cfg.Store.Badger.InMemory,
			Logger:   logger.With("component", "badger"),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
