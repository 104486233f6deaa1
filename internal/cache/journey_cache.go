package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/metrics"
	"github.com/passbi/passbi_journeys/internal/models"
)

const cleanupLockName = "cleanup"

// Config holds journey cache configuration
type Config struct {
	MemoryCapacity int
	MemoryTTL      time.Duration
	PersistentTTL  time.Duration
	WriteTimeout   time.Duration
	CleanupLockTTL time.Duration
}

// DefaultConfig returns the standard tier sizes and TTLs
func DefaultConfig() Config {
	return Config{
		MemoryCapacity: 50,
		MemoryTTL:      30 * time.Minute,
		PersistentTTL:  24 * time.Hour,
		WriteTimeout:   5 * time.Second,
		CleanupLockTTL: 5 * time.Minute,
	}
}

// LoadConfigFromEnv loads cache configuration from environment variables
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	capacity, err := strconv.Atoi(getEnv("CACHE_MEMORY_CAPACITY", strconv.Itoa(def.MemoryCapacity)))
	if err != nil || capacity <= 0 {
		capacity = def.MemoryCapacity
	}

	return Config{
		MemoryCapacity: capacity,
		MemoryTTL:      getEnvDuration("CACHE_MEMORY_TTL", def.MemoryTTL),
		PersistentTTL:  getEnvDuration("CACHE_PERSISTENT_TTL", def.PersistentTTL),
		WriteTimeout:   getEnvDuration("CACHE_WRITE_TIMEOUT", def.WriteTimeout),
		CleanupLockTTL: getEnvDuration("CACHE_CLEANUP_LOCK_TTL", def.CleanupLockTTL),
	}
}

// JourneyCache is the two-tier journey cache: a bounded LRU in memory in front
// of an optional persistent Store. Tier-2 failures degrade to misses and are
// never returned to callers of Get or Put.
type JourneyCache struct {
	cfg     Config
	memory  gcache.Cache
	store   Store
	clock   gcache.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Put holds writesMu shared while adding to writes; Flush holds it
	// exclusively while waiting, so no Add overlaps a Wait
	writesMu sync.RWMutex
	writes   sync.WaitGroup
}

// Option configures a JourneyCache
type Option func(*JourneyCache)

// WithClock replaces the wall clock used for TTL checks
func WithClock(clock gcache.Clock) Option {
	return func(c *JourneyCache) {
		c.clock = clock
	}
}

// NewJourneyCache creates a journey cache. store may be nil for a memory-only cache.
func NewJourneyCache(cfg Config, store Store, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *JourneyCache {
	def := DefaultConfig()
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = def.MemoryCapacity
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = def.MemoryTTL
	}
	if cfg.PersistentTTL <= 0 {
		cfg.PersistentTTL = def.PersistentTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.CleanupLockTTL <= 0 {
		cfg.CleanupLockTTL = def.CleanupLockTTL
	}

	c := &JourneyCache{
		cfg:     cfg,
		store:   store,
		clock:   gcache.NewRealClock(),
		logger:  logging.OrDefault(logger),
		metrics: m,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.memory = gcache.New(cfg.MemoryCapacity).
		LRU().
		Expiration(cfg.MemoryTTL).
		Clock(c.clock).
		Build()

	return c
}

// Get looks key up in memory, then in the persistent store. A persistent hit
// is promoted into memory with a fresh TTL.
func (c *JourneyCache) Get(ctx context.Context, key string) ([]models.JourneyResult, bool) {
	if v, err := c.memory.Get(key); err == nil {
		c.metrics.CacheLookup(metrics.TierMemory, metrics.ResultHit)
		return v.([]models.JourneyResult), true
	}
	c.metrics.CacheLookup(metrics.TierMemory, metrics.ResultMiss)

	if c.store == nil {
		return nil, false
	}

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		logging.LogError(c.logger, "persistent cache read failed", err, slog.String("key", key))
		c.metrics.CacheLookup(metrics.TierPersistent, metrics.ResultMiss)
		return nil, false
	}
	if entry == nil || len(entry.Journeys) == 0 || entry.Expired(c.clock.Now(), c.cfg.PersistentTTL) {
		c.metrics.CacheLookup(metrics.TierPersistent, metrics.ResultMiss)
		return nil, false
	}

	c.metrics.CacheLookup(metrics.TierPersistent, metrics.ResultHit)
	if err := c.memory.Set(key, entry.Journeys); err != nil {
		logging.LogError(c.logger, "memory cache promotion failed", err, slog.String("key", key))
	}
	return entry.Journeys, true
}

// Put stores journeys under key. Empty results are never cached. The memory
// write completes before Put returns; the persistent write runs in the background.
func (c *JourneyCache) Put(key string, journeys []models.JourneyResult) {
	if len(journeys) == 0 {
		return
	}

	err := c.memory.Set(key, journeys)
	c.metrics.CacheWrite(metrics.TierMemory, err)
	if err != nil {
		logging.LogError(c.logger, "memory cache write failed", err, slog.String("key", key))
	}

	if c.store == nil {
		return
	}

	entry := models.CacheEntry{Journeys: journeys, CreatedAt: c.clock.Now()}
	c.writesMu.RLock()
	defer c.writesMu.RUnlock()
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
		defer cancel()

		err := c.store.Put(ctx, key, entry, c.cfg.PersistentTTL)
		c.metrics.CacheWrite(metrics.TierPersistent, err)
		if err != nil {
			logging.LogError(c.logger, "persistent cache write failed", err, slog.String("key", key))
		}
	}()
}

// Flush waits for pending persistent writes
func (c *JourneyCache) Flush() {
	c.writesMu.Lock()
	defer c.writesMu.Unlock()
	c.writes.Wait()
}

// Preload warms memory with the most recent unexpired persistent entries
// and returns how many were loaded
func (c *JourneyCache) Preload(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	start := time.Now()
	now := c.clock.Now()
	entries, err := c.store.Recent(ctx, now.Add(-c.cfg.PersistentTTL), c.cfg.MemoryCapacity)
	if err != nil {
		return 0, fmt.Errorf("failed to read recent cache entries: %w", err)
	}

	loaded := 0
	// oldest first so the newest end up most recently used
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if len(e.Entry.Journeys) == 0 || e.Entry.Expired(now, c.cfg.PersistentTTL) {
			continue
		}
		if err := c.memory.Set(e.Key, e.Entry.Journeys); err != nil {
			continue
		}
		loaded++
	}

	logging.LogOperation(c.logger, "journey_cache_preloaded",
		slog.Int("entries", loaded),
		slog.Duration("duration", time.Since(start)))
	return loaded, nil
}

// CleanupExpired removes persistent entries past their TTL and returns how
// many were removed. With a shared store only one process cleans at a time;
// the others return 0.
func (c *JourneyCache) CleanupExpired(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	if locker, ok := c.store.(Locker); ok {
		acquired, err := locker.AcquireLock(ctx, cleanupLockName, c.cfg.CleanupLockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire cleanup lock: %w", err)
		}
		if !acquired {
			c.logger.Info("cache cleanup already running elsewhere")
			return 0, nil
		}
		defer func() {
			if err := locker.ReleaseLock(context.WithoutCancel(ctx), cleanupLockName); err != nil {
				logging.LogError(c.logger, "failed to release cleanup lock", err)
			}
		}()
	}

	keys, err := c.store.Expired(ctx, c.clock.Now().Add(-c.cfg.PersistentTTL))
	if err != nil {
		return 0, fmt.Errorf("failed to list expired cache entries: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	logging.LogOperation(c.logger, "journey_cache_cleanup", slog.Int("removed", len(keys)))
	return len(keys), nil
}

// ClearAll invalidates both tiers
func (c *JourneyCache) ClearAll(ctx context.Context) error {
	c.memory.Purge()
	if c.store == nil {
		return nil
	}

	// a write still in flight would otherwise land after the wipe
	c.Flush()
	if err := c.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear persistent cache: %w", err)
	}
	c.memory.Purge()

	logging.LogOperation(c.logger, "journey_cache_cleared")
	return nil
}

// MemoryLen returns the number of live entries in memory
func (c *JourneyCache) MemoryLen() int {
	return c.memory.Len(true)
}

// Store returns the persistent store, or nil
func (c *JourneyCache) Store() Store {
	return c.store
}
