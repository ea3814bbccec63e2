// Package migrations embeds and applies the relational schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pacelane/stride/pkg/logger"
)

//go:embed *.sql
var migrationFiles embed.FS

// Run applies all pending migrations. With autoMigrate false it only logs
// the current version and leaves the schema untouched.
func Run(ctx context.Context, db *sql.DB, autoMigrate bool) error {
	log := logger.Get().Named("migrations")

	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty migration state at version %d", version)
	}

	if !autoMigrate {
		log.Info(ctx, "auto-migration disabled, skipping",
			logger.Int("currentVersion", int(version)),
		)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info(ctx, "schema is up to date", logger.Int("version", int(version)))
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read updated migration version: %w", err)
	}
	log.Info(ctx, "migrations applied",
		logger.Int("fromVersion", int(version)),
		logger.Int("toVersion", int(newVersion)),
	)
	return nil
}
