// Package store selects and opens the configured registry backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/registry/internal/config"
	"github.com/JonMunkholm/registry/internal/registry"
	"github.com/JonMunkholm/registry/internal/store/postgres"
	"github.com/JonMunkholm/registry/internal/store/sqlite"
)

// Open opens the backend named by cfg.Driver. With AutoMigrate set, the
// professionals table is created if missing.
func Open(ctx context.Context, cfg config.DatabaseConfig) (registry.Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", config.DriverPostgres, "name", postgres.DatabaseName(cfg.URL))

		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("schema migrated")
		}
		return pg, nil

	case config.DriverSQLite:
		lite, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened database", "driver", config.DriverSQLite, "path", cfg.SQLitePath)
		return lite, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
