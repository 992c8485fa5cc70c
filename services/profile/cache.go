// Package profile provides the in-process permission profile cache that fronts
// the profile store.
package profile

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// cacheEntry represents a single cached profile
type cacheEntry struct {
	profile   *models.UserPermissionProfile
	fetchedAt time.Time
	element   *list.Element // position in insertion order
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"maxSize"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// Cache is a bounded TTL cache of active user profiles in front of a
// ProfileRepository. When full it evicts the oldest inserted entry, whether or
// not that entry was read recently.
type Cache struct {
	store        repositories.ProfileRepository
	logger       *zap.Logger
	ttl          time.Duration
	maxSize      int
	storeTimeout time.Duration
	now          func() time.Time
	fetches      singleflight.Group

	mu        sync.Mutex
	entries   map[string]*cacheEntry
	order     *list.List // front is the oldest insertion
	hits      uint64
	misses    uint64
	evictions uint64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a profile cache backed by store
func NewCache(store repositories.ProfileRepository, cfg config.CacheConfig, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		logger:       logger,
		ttl:          cfg.TTL,
		maxSize:      cfg.MaxEntries,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
		entries:      make(map[string]*cacheEntry),
		order:        list.New(),
	}
	if c.maxSize <= 0 {
		c.maxSize = 1000
	}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = 2 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetProfile returns the active profile for userID.
// A missing or inactive profile yields (nil, nil). Store failures and timeouts
// yield a store_unavailable error and are never cached.
func (c *Cache) GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error) {
	if p, ok := c.lookup(userID); ok {
		c.logger.Debug("profile cache hit", zap.String("user_id", userID))
		return p, nil
	}
	c.logger.Debug("profile cache miss", zap.String("user_id", userID))

	ch := c.fetches.DoChan(userID, func() (interface{}, error) {
		return c.fetch(ctx, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p, _ := res.Val.(*models.UserPermissionProfile)
		return p.Clone(), nil
	case <-ctx.Done():
		return nil, services.WrapStoreUnavailable("profile lookup cancelled", ctx.Err())
	}
}

// fetch loads userID from the store and caches it when active
func (c *Cache) fetch(ctx context.Context, userID string) (*models.UserPermissionProfile, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()

	p, err := c.store.GetProfile(fetchCtx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		c.logger.Error("profile store lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, services.WrapStoreUnavailable("failed to load permission profile", err)
	}

	if p == nil || !p.IsActive {
		c.Invalidate(userID)
		return nil, nil
	}

	c.insert(userID, p.Clone())
	return p, nil
}

func (c *Cache) lookup(userID string) (*models.UserPermissionProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[userID]
	if !exists || c.isExpired(entry) {
		c.misses++
		if exists {
			c.removeEntry(userID)
		}
		return nil, false
	}

	c.hits++
	return entry.profile.Clone(), true
}

// insert stores p. An existing key keeps its insertion position.
func (c *Cache) insert(userID string, p *models.UserPermissionProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[userID]; exists {
		entry.profile = p
		entry.fetchedAt = c.now()
		return
	}

	for c.order.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry{
		profile:   p,
		fetchedAt: c.now(),
	}
	entry.element = c.order.PushBack(userID)
	c.entries[userID] = entry
}

// Invalidate removes a specific cache entry
func (c *Cache) Invalidate(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.entries[userID]
	c.removeEntry(userID)
	return exists
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
}

// Contains reports whether userID has an entry, without counting a hit or miss
func (c *Cache) Contains(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID]
	return ok
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:      c.order.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		userID := e.Value.(string)
		if c.isExpired(c.entries[userID]) {
			c.removeEntry(userID)
			removed++
		}
		e = next
	}
	return removed
}

// StartCleanupWorker removes expired entries every interval until ctx is done
func (c *Cache) StartCleanupWorker(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.CleanupExpired(); n > 0 {
				c.logger.Debug("expired profiles removed", zap.Int("count", n))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// isExpired must be called with lock held
func (c *Cache) isExpired(e *cacheEntry) bool {
	return c.now().Sub(e.fetchedAt) >= c.ttl
}

// removeEntry must be called with lock held
func (c *Cache) removeEntry(userID string) {
	if entry, exists := c.entries[userID]; exists {
		c.order.Remove(entry.element)
		delete(c.entries, userID)
	}
}

// evictOldest must be called with lock held
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	userID := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, userID)
	c.evictions++
}
