package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
)

// AuditRepository writes each entry once under <prefix>:audit:<userId>:<timestamp>.
// Redis expires the key at the entry's TTLExpiry.
type AuditRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// NewAuditRepository creates a Redis audit repository
func NewAuditRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{client: client, prefix: prefix, now: time.Now, logger: logger}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// Put stores entry if no entry exists for the same user and timestamp. The
// same entry written twice is accepted; a different one is ErrConflict.
func (r *AuditRepository) Put(ctx context.Context, entry *models.AuditLogEntry) error {
	ttl := entry.TTLExpiry.Sub(r.now())
	if ttl <= 0 {
		r.logger.Debug("audit entry already expired, skipping", zap.String("user_id", entry.UserID))
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := auditKey(r.prefix, entry.UserID, entry.SortKey())
	created, err := r.client.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if !created {
		return r.checkExisting(ctx, key, entry)
	}

	r.logger.Debug("audit entry written", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// checkExisting accepts a key already holding entry, which happens when an
// earlier write landed but its reply was lost.
func (r *AuditRepository) checkExisting(ctx context.Context, key string, entry *models.AuditLogEntry) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("failed to read existing audit entry %s: %w", key, err)
	}

	var stored struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("failed to decode existing audit entry %s: %w", key, err)
	}
	if stored.ID != entry.ID {
		return fmt.Errorf("audit entry %s: %w", key, repositories.ErrConflict)
	}

	r.logger.Debug("audit entry already stored", zap.String("key", key))
	return nil
}
