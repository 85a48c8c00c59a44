// Package history records the append-only audit trail of workflow instances.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Record describes one audit entry. Empty TaskID and Performer are stored as NULL;
// an empty Performer marks a system action.
type Record struct {
	InstanceID string
	TaskID     string
	ActionCode string
	Details    string
	Performer  string
	At         time.Time
}

// Log appends and reads audit entries
type Log struct {
	repo port.HistoryRepository
}

// NewLog creates a history log on top of the repository
func NewLog(repo port.HistoryRepository) *Log {
	return &Log{repo: repo}
}

// Record appends an entry. Callers run it inside the transaction of the change it describes.
func (l *Log) Record(ctx context.Context, rec Record) (*entity.HistoryEntry, error) {
	if rec.InstanceID == "" || rec.ActionCode == "" {
		return nil, fmt.Errorf("history record requires instance id and action code")
	}

	entry := &entity.HistoryEntry{
		ID:          uuid.NewString(),
		InstanceID:  rec.InstanceID,
		TaskID:      optional(rec.TaskID),
		ActionCode:  rec.ActionCode,
		Details:     rec.Details,
		PerformedBy: optional(rec.Performer),
		ActionDate:  rec.At,
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history %s: %w", rec.ActionCode, err)
	}
	return entry, nil
}

// List returns the instance's entries in append order
func (l *Log) List(ctx context.Context, instanceID string) ([]*entity.HistoryEntry, error) {
	entries, err := l.repo.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
