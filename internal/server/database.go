package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/docintake/internal/common"
	repo "github.com/joseph-ayodele/docintake/internal/repository"
)

// ConnectDB opens the configured database and applies migrations. pool is nil for sqlite.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*entsql.Driver, *pgxpool.Pool, error) {
	var (
		drv  *entsql.Driver
		pool *pgxpool.Pool
		err  error
	)
	switch cfg.Driver {
	case "sqlite":
		drv, err = repo.OpenSQLite(ctx, cfg.DSN, logger)
	default:
		drv, pool, err = repo.Open(ctx, repo.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	}
	if err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Driver, "error", err)
		return nil, nil, err
	}

	if err := repo.Migrate(ctx, drv, logger); err != nil {
		CloseDB(drv, pool, logger)
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("successfully connected to database", "driver", cfg.Driver)
	return drv, pool, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, drv *entsql.Driver, logger *slog.Logger, timeout time.Duration) error {
	return repo.HealthCheck(ctx, drv, timeout, logger)
}

// CloseDB closes the database connections gracefully
func CloseDB(drv *entsql.Driver, pool *pgxpool.Pool, logger *slog.Logger) {
	repo.Close(drv, pool, logger)
}
