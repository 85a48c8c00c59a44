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

const stepColumns = `id, template_id, step_order, name, step_type, approval_policy, required_approvals, sla_hours`

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sqlite.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID loads a template with its steps, approvers and roles
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowTemplate, error) {
	exec := r.db.Executor(ctx)

	var tpl entity.WorkflowTemplate
	err := sqlx.GetContext(ctx, exec, &tpl,
		`SELECT id, name, is_active, created_at FROM workflow_templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.String("template_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	var steps []*entity.WorkflowStep
	if err := sqlx.SelectContext(ctx, exec, &steps,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE template_id = ? ORDER BY step_order`, id); err != nil {
		r.logger.Error("Failed to get template steps", zap.String("template_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template steps: %w", err)
	}

	if err := r.loadAssignments(ctx, exec, steps); err != nil {
		return nil, err
	}

	tpl.Steps = steps
	return &tpl, nil
}

// GetStep loads a single step by template and order
func (r *TemplateRepository) GetStep(ctx context.Context, templateID string, order int) (*entity.WorkflowStep, error) {
	exec := r.db.Executor(ctx)

	var step entity.WorkflowStep
	err := sqlx.GetContext(ctx, exec, &step,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE template_id = ? AND step_order = ?`, templateID, order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step",
			zap.String("template_id", templateID),
			zap.Int("step_order", order),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	if err := r.loadAssignments(ctx, exec, []*entity.WorkflowStep{&step}); err != nil {
		return nil, err
	}
	return &step, nil
}

// List returns all templates without their steps
func (r *TemplateRepository) List(ctx context.Context) ([]*entity.WorkflowTemplate, error) {
	var templates []*entity.WorkflowTemplate
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &templates,
		`SELECT id, name, is_active, created_at FROM workflow_templates ORDER BY id`); err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Create inserts a template with its steps, approvers and roles
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.WorkflowTemplate) error {
	exec := r.db.Executor(ctx)

	if _, err := exec.ExecContext(ctx,
		`INSERT INTO workflow_templates (id, name, is_active, created_at) VALUES (?, ?, ?, ?)`,
		tpl.ID, tpl.Name, tpl.IsActive, utc(tpl.CreatedAt)); err != nil {
		r.logger.Error("Failed to create template", zap.String("template_id", tpl.ID), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	for _, step := range tpl.Steps {
		step.TemplateID = tpl.ID
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO workflow_steps (`+stepColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID, step.TemplateID, step.StepOrder, step.Name, step.StepType,
			string(step.ApprovalPolicy), step.RequiredApprovals, step.SLAHours,
		); err != nil {
			r.logger.Error("Failed to create step", zap.String("step_id", step.ID), zap.Error(err))
			return fmt.Errorf("failed to create step %s: %w", step.ID, err)
		}

		for i, user := range step.Approvers {
			if _, err := exec.ExecContext(ctx,
				`INSERT OR IGNORE INTO step_approvers (step_id, user_id, position) VALUES (?, ?, ?)`,
				step.ID, user, i); err != nil {
				return fmt.Errorf("failed to add approver to step %s: %w", step.ID, err)
			}
		}
		for i, role := range step.Roles {
			if _, err := exec.ExecContext(ctx,
				`INSERT OR IGNORE INTO step_roles (step_id, role_name, position) VALUES (?, ?, ?)`,
				step.ID, role, i); err != nil {
				return fmt.Errorf("failed to add role to step %s: %w", step.ID, err)
			}
		}
	}

	r.logger.Info("Template created",
		zap.String("template_id", tpl.ID),
		zap.Int("steps", len(tpl.Steps)))
	return nil
}

type stepAssignment struct {
	StepID string `db:"step_id"`
	Value  string `db:"value"`
}

// loadAssignments fills Approvers and Roles of the given steps in two queries
func (r *TemplateRepository) loadAssignments(ctx context.Context, exec sqlite.Executor, steps []*entity.WorkflowStep) error {
	if len(steps) == 0 {
		return nil
	}

	byID := make(map[string]*entity.WorkflowStep, len(steps))
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	approvers, err := r.selectAssignments(ctx, exec,
		`SELECT step_id, user_id AS value FROM step_approvers WHERE step_id IN (?) ORDER BY step_id, position, user_id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load step approvers: %w", err)
	}
	for _, a := range approvers {
		byID[a.StepID].Approvers = append(byID[a.StepID].Approvers, a.Value)
	}

	roles, err := r.selectAssignments(ctx, exec,
		`SELECT step_id, role_name AS value FROM step_roles WHERE step_id IN (?) ORDER BY step_id, position, role_name`, ids)
	if err != nil {
		return fmt.Errorf("failed to load step roles: %w", err)
	}
	for _, a := range roles {
		byID[a.StepID].Roles = append(byID[a.StepID].Roles, a.Value)
	}

	return nil
}

func (r *TemplateRepository) selectAssignments(ctx context.Context, exec sqlite.Executor, query string, ids []string) ([]stepAssignment, error) {
	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}

	var rows []stepAssignment
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
