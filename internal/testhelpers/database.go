package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/commercetrack/attribution/internal/logger"
	_ "github.com/lib/pq" //nolint:blankimports // PostgreSQL driver
)

// RunMigrations executes the schema migration files on a database connection.
// Integration tests that need a real PostgreSQL instance call this after
// connecting; unit tests use sqlmock and skip it.
func RunMigrations(ctx context.Context, db *sql.DB, log logger.Logger) error {
	_, filename, _, _ := runtime.Caller(0)
	migrationsPath := filepath.Join(filepath.Dir(filename), "..", "..", "migrations")

	migrationFile := filepath.Join(migrationsPath, "001_create_attribution_tables.sql")
	sqlBytes, err := os.ReadFile(migrationFile)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	if _, execErr := db.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("execute migration: %w", execErr)
	}

	if log != nil {
		log.Info("Migrations applied successfully",
			logger.String("migration_file", migrationFile),
		)
	}

	return nil
}
