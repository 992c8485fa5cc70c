package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/handlers"
	"github.com/upb/permission-engine/middleware"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/services/audit"
	"github.com/upb/permission-engine/services/evaluator"
	"github.com/upb/permission-engine/services/permission"
	"github.com/upb/permission-engine/services/profile"
	"go.uber.org/zap"
)

// AuditPurger deletes audit entries whose retention has passed. Only stores
// without native expiry implement it.
type AuditPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Policy *config.PolicyConfig
	Logger *zap.Logger
	Repos  *repositories.Repositories

	// Engine
	ProfileCache *profile.Cache
	Evaluator    *evaluator.Evaluator
	AuditLogger  *audit.Logger
	Dispatcher   *audit.Dispatcher
	Permissions  *permission.Service
	AuditPurger  AuditPurger // nil when the audit store expires entries itself

	// HTTP
	PermissionHandler *handlers.PermissionHandler
	CacheHandler      *handlers.CacheHandler
	HealthHandler     *handlers.HealthHandler
	AuthMiddleware    *middleware.AuthMiddleware // nil when service auth is disabled
}

// NewDependencies loads the policy, opens the configured stores and wires the engine.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	policy, err := config.LoadPolicy(cfg.Environment, cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	repos, err := OpenRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}

	deps, err := Build(cfg, policy, repos, logger)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("environment", string(policy.Environment)),
		zap.Strings("projects", policy.Projects()),
		zap.Bool("audit_enabled", policy.AuditLog.Enabled))
	return deps, nil
}

// Build wires the engine over already opened stores. opts configure the profile cache.
func Build(cfg *config.Config, policy *config.PolicyConfig, repos *repositories.Repositories, logger *zap.Logger, opts ...profile.Option) (*Dependencies, error) {
	if repos == nil || repos.Profiles == nil || repos.AuditLogs == nil {
		return nil, fmt.Errorf("profile and audit stores are required")
	}

	eval, err := evaluator.New(policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}

	d := &Dependencies{
		Config:    cfg,
		Policy:    policy,
		Logger:    logger,
		Repos:     repos,
		Evaluator: eval,
	}

	d.ProfileCache = profile.NewCache(repos.Profiles, cfg.Cache, logger, opts...)
	d.AuditLogger = audit.NewLogger(repos.AuditLogs, policy, cfg.Audit, logger)
	d.Dispatcher = audit.NewDispatcher(d.AuditLogger, cfg.Audit, logger)
	d.Permissions = permission.NewService(d.ProfileCache, eval, d.Dispatcher, nil, logger)

	if purger, ok := repos.AuditLogs.(AuditPurger); ok {
		d.AuditPurger = purger
	}

	d.PermissionHandler = handlers.NewPermissionHandler(d.Permissions, cfg.Auth.TrustProxyHeaders, logger)
	d.CacheHandler = handlers.NewCacheHandler(d.ProfileCache, logger)
	d.HealthHandler = handlers.NewHealthHandler(repos.Health, logger)

	d.initAuth(cfg)

	return d, nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.ServiceSecret == "" {
		d.Logger.Warn("service auth not configured, permission endpoints are unauthenticated")
		return
	}
	validator := middleware.NewHMACValidator(cfg.Auth.ServiceSecret, cfg.Auth.ServiceIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("service auth enabled", zap.String("issuer", cfg.Auth.ServiceIssuer))
}

// RunAuditPurge deletes expired audit entries every interval until ctx is done.
// It returns immediately when the audit store needs no purging.
func (d *Dependencies) RunAuditPurge(ctx context.Context, interval time.Duration) error {
	if d.AuditPurger == nil || interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := d.AuditPurger.PurgeExpired(ctx, time.Now())
			if err != nil {
				d.Logger.Warn("audit purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				d.Logger.Info("expired audit entries purged", zap.Int64("count", n))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close drains pending audit records and releases every store connection
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Dispatcher != nil && d.Dispatcher.Stats().Started {
		timeout := d.Config.Audit.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.Dispatcher.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain audit dispatcher: %w", err))
		}
	}

	if d.Repos != nil {
		if err := d.Repos.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stores: %w", err))
		} else {
			d.Logger.Info("store connections closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
