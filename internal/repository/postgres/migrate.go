package postgres

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

type migrationLogger struct{}

func (migrationLogger) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (migrationLogger) Verbose() bool { return false }

// Migrate applies every pending migration found in dir.
func Migrate(db *DB, dir string) error {
	m, err := newMigrate(db, dir)
	if err != nil {
		return err
	}

	before, dirty, _ := m.Version()
	if dirty {
		return fmt.Errorf("database is dirty at migration version %d, fix it and force the version", before)
	}

	start := time.Now()
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Uint("version", before).Msg("database schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, _, _ := m.Version()
	log.Info().
		Uint("from", before).
		Uint("to", after).
		Dur("elapsed", time.Since(start)).
		Msg("database migrations applied")
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(db *DB, dir string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrate(db, dir)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

func newMigrate(db *DB, dir string) (*migrate.Migrate, error) {
	folder, err := resolveMigrationFolder(dir)
	if err != nil {
		return nil, err
	}

	driver, err := migratepg.WithInstance(db.DB.DB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{}
	return m, nil
}

func resolveMigrationFolder(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid migrations path %s: %w", dir, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("migration folder %s does not exist: %w", abs, err)
	}
	return abs, nil
}
