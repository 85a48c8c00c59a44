// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/pkg/database"
)

// NewDB opens a migrated sqlite database in a per-test temp directory
func NewDB(t testing.TB) *sqlite.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "approval.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.NewMigrator(db, logger).Up(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	return sqlite.NewDB(db.DB, logger)
}

// FixedClock is a settable clock for deterministic tests
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time
func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
