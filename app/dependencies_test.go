package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type memoryProfiles struct {
	profiles map[string]*models.UserPermissionProfile
}

func (m *memoryProfiles) GetProfile(_ context.Context, userID string) (*models.UserPermissionProfile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *memoryProfiles) ImportProfiles(_ context.Context, profiles []*models.UserPermissionProfile) error {
	for _, p := range profiles {
		m.profiles[p.UserID] = p.Clone()
	}
	return nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func (m *memoryAudit) Put(_ context.Context, entry *models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAudit) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type purgingAudit struct {
	memoryAudit
	purges atomic.Int32
	err    error
}

func (p *purgingAudit) PurgeExpired(context.Context, time.Time) (int64, error) {
	p.purges.Add(1)
	return 2, p.err
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Store:       config.StoreConfig{ProfileBackend: config.BackendPostgres, AuditBackend: config.BackendPostgres},
		Cache:       config.CacheConfig{TTL: time.Minute, MaxEntries: 10, StoreTimeout: time.Second},
		Audit: config.AuditConfig{
			BufferSize:      10,
			WorkerCount:     1,
			WriteTimeout:    time.Second,
			RetryDelay:      time.Millisecond,
			ShutdownTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{LogLevel: "info"},
	}
}

func testPolicy(t *testing.T) *config.PolicyConfig {
	t.Helper()
	policy, err := config.BuiltinPolicy(config.EnvDevelopment).Build()
	require.NoError(t, err)
	return policy
}

func testRepos(audit repositories.AuditRepository) *repositories.Repositories {
	return &repositories.Repositories{
		Profiles: &memoryProfiles{profiles: map[string]*models.UserPermissionProfile{
			"user001": {
				UserID:          "user001",
				PermissionLevel: models.PermissionLevelBasic,
				Permissions:     []string{"basic"},
				IsActive:        true,
			},
		}},
		AuditLogs: audit,
		Health:    map[string]repositories.HealthChecker{},
	}
}

func TestBuild(t *testing.T) {
	t.Run("wires every component", func(t *testing.T) {
		deps, err := Build(testConfig(), testPolicy(t), testRepos(&memoryAudit{}), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.ProfileCache)
		assert.NotNil(t, deps.Evaluator)
		assert.NotNil(t, deps.AuditLogger)
		assert.NotNil(t, deps.Dispatcher)
		assert.NotNil(t, deps.Permissions)
		assert.NotNil(t, deps.PermissionHandler)
		assert.NotNil(t, deps.CacheHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.Nil(t, deps.AuthMiddleware)
		assert.Nil(t, deps.AuditPurger)
		assert.Same(t, deps.Evaluator, deps.Permissions.Evaluator())
	})

	t.Run("service secret enables auth", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.ServiceSecret = "secret"

		deps, err := Build(cfg, testPolicy(t), testRepos(&memoryAudit{}), zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, deps.AuthMiddleware)
	})

	t.Run("purging audit store is detected", func(t *testing.T) {
		deps, err := Build(testConfig(), testPolicy(t), testRepos(&purgingAudit{}), zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, deps.AuditPurger)
	})

	t.Run("missing stores", func(t *testing.T) {
		_, err := Build(testConfig(), testPolicy(t), &repositories.Repositories{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("unbuilt policy", func(t *testing.T) {
		policy := config.BuiltinPolicy(config.EnvDevelopment)
		_, err := Build(testConfig(), &policy, testRepos(&memoryAudit{}), zap.NewNop())
		assert.Error(t, err)
	})
}

func TestDependencies_EvaluateAndDrain(t *testing.T) {
	store := &memoryAudit{}
	closed := false
	repos := testRepos(store)
	repos.Closers = []func() error{func() error { closed = true; return nil }}

	deps, err := Build(testConfig(), testPolicy(t), repos, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, deps.Dispatcher.Start())

	eval, err := deps.Permissions.Check(context.Background(), []byte(`{"userId":"user001","action":"test","clientIp":"127.0.0.1"}`))
	require.NoError(t, err)
	assert.True(t, eval.Response.Allowed)

	eval, err = deps.Permissions.Check(context.Background(), []byte(`{"userId":"ghost","action":"test"}`))
	require.NoError(t, err)
	assert.False(t, eval.Response.Allowed)

	require.NoError(t, deps.Close(context.Background()))
	assert.Equal(t, 2, store.len())
	assert.True(t, closed)
	assert.True(t, deps.ProfileCache.Contains("user001"))
}

func TestDependencies_CloseReportsStoreErrors(t *testing.T) {
	repos := testRepos(&memoryAudit{})
	repos.Closers = []func() error{func() error { return errors.New("boom") }}

	deps, err := Build(testConfig(), testPolicy(t), repos, zap.NewNop())
	require.NoError(t, err)

	err = deps.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDependencies_RunAuditPurge(t *testing.T) {
	t.Run("purges until cancelled", func(t *testing.T) {
		store := &purgingAudit{}
		deps, err := Build(testConfig(), testPolicy(t), testRepos(store), zap.NewNop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- deps.RunAuditPurge(ctx, 5*time.Millisecond) }()

		assert.Eventually(t, func() bool { return store.purges.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("purge errors do not stop the worker", func(t *testing.T) {
		store := &purgingAudit{err: errors.New("db down")}
		deps, err := Build(testConfig(), testPolicy(t), testRepos(store), zap.NewNop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- deps.RunAuditPurge(ctx, 5*time.Millisecond) }()

		assert.Eventually(t, func() bool { return store.purges.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("no purger returns immediately", func(t *testing.T) {
		deps, err := Build(testConfig(), testPolicy(t), testRepos(&memoryAudit{}), zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, deps.RunAuditPurge(context.Background(), time.Millisecond))
	})
}
