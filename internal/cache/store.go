package cache

import (
	"context"
	"time"

	"github.com/passbi/passbi_journeys/internal/models"
)

// KeyedEntry is a persisted entry together with its cache key
type KeyedEntry struct {
	Key   string
	Entry models.CacheEntry
}

// Store is the persistent (tier 2) journey store.
// Get returns nil, nil on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, key string, entry models.CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteAll(ctx context.Context) error
	// Expired lists keys created at or before cutoff
	Expired(ctx context.Context, cutoff time.Time) ([]string, error)
	// Recent lists entries created after since, newest first; limit <= 0 means all
	Recent(ctx context.Context, since time.Time, limit int) ([]KeyedEntry, error)
	Ping(ctx context.Context) error
}

// Locker is implemented by stores shared between processes so that
// maintenance runs on one instance at a time
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}
