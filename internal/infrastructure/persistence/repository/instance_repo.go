package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

const instanceColumns = `id, template_id, document_ref, initiator, status, current_step_order,
	start_date, due_date, end_date, priority, comments, version`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqlite.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow instance at version 1
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	instance.Version = 1
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO workflow_instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		instance.ID,
		instance.TemplateID,
		instance.DocumentRef,
		instance.Initiator,
		instance.Status,
		instance.CurrentStepOrder,
		utc(instance.StartDate),
		utcPtr(instance.DueDate),
		utcPtr(instance.EndDate),
		instance.Priority,
		instance.Comments,
		instance.Version,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("instance_id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	err := sqlx.GetContext(ctx, r.db.Executor(ctx), &instance,
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.String("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return &instance, nil
}

// Update writes the mutable fields if the stored version still matches
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.WorkflowInstance) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = ?, current_step_order = ?, due_date = ?, end_date = ?,
			priority = ?, comments = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		instance.Status,
		instance.CurrentStepOrder,
		utcPtr(instance.DueDate),
		utcPtr(instance.EndDate),
		instance.Priority,
		instance.Comments,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("instance_id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	if err := checkVersionedUpdate(result, "instance", instance.ID, instance.Version); err != nil {
		return err
	}
	instance.Version++
	return nil
}

// List returns instances newest first
func (r *InstanceRepository) List(ctx context.Context, filter port.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`
	args := []interface{}{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY start_date DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	var instances []*entity.WorkflowInstance
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &instances, query, args...); err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
