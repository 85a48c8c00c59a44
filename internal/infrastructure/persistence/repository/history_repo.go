package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository.
// The table rejects UPDATE and DELETE, so only inserts and reads exist here.
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO workflow_history (id, instance_id, task_id, action_code, details, performed_by, action_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.InstanceID,
		entry.TaskID,
		entry.ActionCode,
		entry.Details,
		entry.PerformedBy,
		utc(entry.ActionDate),
	)
	if err != nil {
		r.logger.Error("Failed to append history",
			zap.String("instance_id", entry.InstanceID),
			zap.String("action_code", entry.ActionCode),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get history sequence: %w", err)
	}
	entry.Seq = seq
	return nil
}

// ListByInstance returns entries in the order they were recorded
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.HistoryEntry, error) {
	var entries []*entity.HistoryEntry
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &entries, `
		SELECT seq, id, instance_id, task_id, action_code, details, performed_by, action_date
		FROM workflow_history
		WHERE instance_id = ?
		ORDER BY seq`, instanceID); err != nil {
		r.logger.Error("Failed to list history", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
