package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/repositories/elastic"
	"github.com/upb/permission-engine/repositories/postgres"
	"github.com/upb/permission-engine/repositories/redisstore"
	"go.uber.org/zap"
)

// OpenRepositories connects to every backend named by cfg.Store and returns
// the profile and audit stores. Connections opened before a failure are closed.
func OpenRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories.Repositories, error) {
	repos := &repositories.Repositories{Health: make(map[string]repositories.HealthChecker)}

	fail := func(err error) (*repositories.Repositories, error) {
		_ = repos.Close()
		return nil, err
	}

	var pg *postgres.RepositoryFactory
	if cfg.UsesBackend(config.BackendPostgres) {
		factory, err := postgres.NewRepositoryFactory(cfg, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to open postgres: %w", err))
		}
		repos.Closers = append(repos.Closers, factory.Close)
		if err := factory.InitSchema(ctx); err != nil {
			return fail(fmt.Errorf("failed to initialize schema: %w", err))
		}
		repos.Health[config.BackendPostgres] = factory
		pg = factory
	}

	var rdb *redis.Client
	if cfg.UsesBackend(config.BackendRedis) {
		client, err := redisstore.NewClient(cfg.Redis, logger)
		if err != nil {
			return fail(err)
		}
		repos.Closers = append(repos.Closers, client.Close)
		repos.Health[config.BackendRedis] = redisstore.NewHealthChecker(client)
		rdb = client
	}

	switch cfg.Store.ProfileBackend {
	case config.BackendPostgres:
		repos.Profiles = pg.Profiles()
	case config.BackendRedis:
		repos.Profiles = redisstore.NewProfileRepository(rdb, cfg.Redis.KeyPrefix, logger)
	default:
		return fail(fmt.Errorf("unsupported profile store %q", cfg.Store.ProfileBackend))
	}

	switch cfg.Store.AuditBackend {
	case config.BackendPostgres:
		repos.AuditLogs = pg.AuditLogs()
	case config.BackendRedis:
		repos.AuditLogs = redisstore.NewAuditRepository(rdb, cfg.Redis.KeyPrefix, logger)
	case config.BackendElasticsearch:
		client, err := elastic.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fail(err)
		}
		es := elastic.NewAuditRepository(client, cfg.Elasticsearch.Index, logger)
		repos.AuditLogs = es
		repos.Health[config.BackendElasticsearch] = es
	default:
		return fail(fmt.Errorf("unsupported audit store %q", cfg.Store.AuditBackend))
	}

	logger.Info("stores selected",
		zap.String("profiles", cfg.Store.ProfileBackend),
		zap.String("audit", cfg.Store.AuditBackend))

	return repos, nil
}
