package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
)

// ProfileRepository implements the repositories.ProfileRepository interface
type ProfileRepository struct {
	db     *DB
	txMgr  *TxManager
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		txMgr:  NewTxManager(db, logger),
		logger: logger,
	}
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// GetProfile retrieves a profile by user ID
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error) {
	query := `
		SELECT user_id, permission_level, permissions, display_name, department, role, is_active
		FROM user_permissions
		WHERE user_id = $1
	`

	executor := conn(ctx, r.db)
	profile := &models.UserPermissionProfile{}
	var level string

	err := executor.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&level,
		pq.Array(&profile.Permissions),
		&profile.DisplayName,
		&profile.Department,
		&profile.Role,
		&profile.IsActive,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	// Unknown levels are kept verbatim; the evaluator grants them nothing
	profile.PermissionLevel = models.PermissionLevel(level)
	return profile, nil
}

// ImportProfiles upserts profiles in a single transaction
func (r *ProfileRepository) ImportProfiles(ctx context.Context, profiles []*models.UserPermissionProfile) error {
	query := `
		INSERT INTO user_permissions (user_id, permission_level, permissions, display_name, department, role, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			permission_level = EXCLUDED.permission_level,
			permissions = EXCLUDED.permissions,
			display_name = EXCLUDED.display_name,
			department = EXCLUDED.department,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			updated_at = CURRENT_TIMESTAMP
	`

	err := r.txMgr.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := conn(ctx, r.db)
		for _, p := range profiles {
			permissions := p.Permissions
			if permissions == nil {
				permissions = []string{}
			}
			if _, err := executor.ExecContext(ctx, query,
				p.UserID,
				string(p.PermissionLevel),
				pq.Array(permissions),
				p.DisplayName,
				p.Department,
				p.Role,
				p.IsActive,
			); err != nil {
				return fmt.Errorf("failed to import profile %s: %w", p.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("profiles imported", zap.Int("count", len(profiles)))
	return nil
}
