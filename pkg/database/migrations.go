package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// newMigrate binds golang-migrate to the shared connection. The returned
// instance must not be closed: its sqlite3 driver would close the pool.
func (m *Migrator) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(m.db.DB.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return mg, nil
}

// Up applies all pending migrations
func (m *Migrator) Up() error {
	mg, err := m.newMigrate()
	if err != nil {
		return err
	}

	m.logger.Info("Starting database migrations")
	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run up migrations: %w", err)
	}

	m.logger.Info("Database migrations completed successfully")
	return nil
}

// Down reverts the given number of migrations
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	mg, err := m.newMigrate()
	if err != nil {
		return err
	}

	if err := mg.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	m.logger.Info("Database migrations reverted", zap.Int("steps", steps))
	return nil
}

// Version returns the current schema version; 0 means no migration has run
func (m *Migrator) Version() (uint, bool, error) {
	mg, err := m.newMigrate()
	if err != nil {
		return 0, false, err
	}

	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return v, dirty, nil
}
