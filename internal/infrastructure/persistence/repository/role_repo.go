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

// RoleRepository implements port.RoleRepository on the role_members table
type RoleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sqlite.DB, logger *zap.Logger) port.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// CurrentRoleHolders returns the role's members sorted by user id
func (r *RoleRepository) CurrentRoleHolders(ctx context.Context, roleName string) ([]string, error) {
	var users []string
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &users,
		`SELECT user_id FROM role_members WHERE role_name = ? ORDER BY user_id`, roleName); err != nil {
		r.logger.Error("Failed to resolve role holders", zap.String("role", roleName), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve role %s: %w", roleName, err)
	}
	return users, nil
}

// AddMember grants a role; granting an existing membership is a no-op
func (r *RoleRepository) AddMember(ctx context.Context, roleName, userID string) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT OR IGNORE INTO role_members (role_name, user_id) VALUES (?, ?)`, roleName, userID); err != nil {
		r.logger.Error("Failed to add role member",
			zap.String("role", roleName),
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to add role member: %w", err)
	}
	return nil
}

// ListMembers returns every membership ordered by role then user
func (r *RoleRepository) ListMembers(ctx context.Context) ([]*entity.RoleMember, error) {
	var members []*entity.RoleMember
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &members,
		`SELECT role_name, user_id FROM role_members ORDER BY role_name, user_id`); err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}
	return members, nil
}

// Verify interface compliance
var _ port.RoleRepository = (*RoleRepository)(nil)
