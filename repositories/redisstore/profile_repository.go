package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
)

// ProfileRepository stores each profile as JSON under <prefix>:profile:<userId>
type ProfileRepository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewProfileRepository creates a Redis profile repository
func NewProfileRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{client: client, prefix: prefix, logger: logger}
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// GetProfile retrieves a profile by user ID
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error) {
	raw, err := r.client.Get(ctx, profileKey(r.prefix, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repositories.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile models.UserPermissionProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile %s: %w", userID, err)
	}
	return &profile, nil
}

// ImportProfiles writes all profiles in one MULTI/EXEC transaction
func (r *ProfileRepository) ImportProfiles(ctx context.Context, profiles []*models.UserPermissionProfile) error {
	encoded := make(map[string][]byte, len(profiles))
	for _, p := range profiles {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile %s: %w", p.UserID, err)
		}
		encoded[p.UserID] = raw
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range profiles {
			pipe.Set(ctx, profileKey(r.prefix, p.UserID), encoded[p.UserID], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import profiles: %w", err)
	}

	r.logger.Info("profiles imported", zap.Int("count", len(profiles)))
	return nil
}
