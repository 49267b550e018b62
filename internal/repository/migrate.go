package repository

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrate applies the embedded DDL for the driver's dialect. Statements are idempotent.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	dir := "migrations/sqlite"
	if drv.Dialect() == dialect.Postgres {
		dir = "migrations/postgres"
	}
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			var res stdsql.Result
			if err := drv.Exec(ctx, stmt, []any{}, &res); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
		logger.Info("db.migration.applied", "file", name, "dialect", drv.Dialect())
	}
	return nil
}
