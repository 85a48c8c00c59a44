package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// sqlite compares DATETIME values as text, so every stored time is normalized to UTC.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// checkVersionedUpdate converts a zero-row optimistic update into ErrConflict
func checkVersionedUpdate(result sql.Result, kind, id string, version int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s is no longer at version %d", workflow.ErrConflict, kind, id, version)
	}
	return nil
}
