// Package redisstore keeps permission profiles and audit entries in Redis.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/permission-engine/config"
	"go.uber.org/zap"
)

// NewClient opens a Redis client and verifies it with a ping
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// HealthChecker pings a Redis client
type HealthChecker struct {
	client redis.UniversalClient
}

// NewHealthChecker creates a health checker for client
func NewHealthChecker(client redis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: client}
}

// HealthCheck pings Redis
func (h *HealthChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func profileKey(prefix, userID string) string {
	return fmt.Sprintf("%s:profile:%s", prefix, userID)
}

func auditKey(prefix, userID, sortKey string) string {
	return fmt.Sprintf("%s:audit:%s:%s", prefix, userID, sortKey)
}
