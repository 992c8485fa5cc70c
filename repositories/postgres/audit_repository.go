package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// Put inserts a new audit log entry. Re-inserting a stored entry is a no-op.
func (r *AuditRepository) Put(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO permission_audit_logs (
			id, user_id, timestamp, action, resource, result, details, risk_score, ttl_expiry
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (user_id, timestamp, id) DO NOTHING
	`

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	executor := conn(ctx, r.db)
	res, err := executor.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Timestamp,
		string(entry.Action),
		entry.Resource,
		string(entry.Result),
		details,
		entry.RiskScore,
		entry.TTLExpiry,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.logger.Debug("audit log already stored", zap.String("id", entry.ID.String()))
		return nil
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", entry.ID.String()),
		zap.String("user_id", entry.UserID),
		zap.String("result", string(entry.Result)))
	return nil
}

// PurgeExpired deletes entries whose ttl_expiry is before now and returns how many were removed
func (r *AuditRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	executor := conn(ctx, r.db)
	res, err := executor.ExecContext(ctx, `DELETE FROM permission_audit_logs WHERE ttl_expiry < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged audit logs: %w", err)
	}
	if n > 0 {
		r.logger.Info("expired audit logs purged", zap.Int64("count", n))
	}
	return n, nil
}
