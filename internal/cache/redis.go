package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/passbi/passbi_journeys/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "journey:"
	indexSuffix      = "index"
	lockSuffix       = "lock:"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
}

// LoadRedisConfigFromEnv loads Redis configuration from environment variables
func LoadRedisConfigFromEnv() RedisConfig {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return RedisConfig{
		Host:       getEnv("REDIS_HOST", "localhost"),
		Port:       port,
		Password:   getEnv("REDIS_PASSWORD", ""),
		DB:         db,
		TLSEnabled: getEnv("REDIS_TLS_ENABLED", "false") == "true",
	}
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	// Managed Redis offerings require TLS
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisStore persists journey lists as JSON strings with a native TTL.
// A sorted set scored by creation time indexes the keys for cleanup and preload.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over client. An empty prefix uses "journey:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) dataKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + indexSuffix
}

func (s *RedisStore) lockKey(name string) string {
	return s.prefix + lockSuffix + name
}

// Get retrieves a cached entry
func (s *RedisStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached journeys: %w", err)
	}

	return &entry, nil
}

// Put caches an entry and indexes it by creation time
func (s *RedisStore) Put(ctx context.Context, key string, entry models.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journeys: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(key), data, ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(entry.CreatedAt.Unix()),
			Member: key,
		})
		return nil
	})
	return err
}

// Delete removes entries and their index members
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	dataKeys := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		dataKeys[i] = s.dataKey(k)
		members[i] = k
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, dataKeys...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	return err
}

// DeleteAll removes every indexed entry and the index itself
func (s *RedisStore) DeleteAll(ctx context.Context) error {
	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, keys...); err != nil {
		return err
	}
	return s.client.Del(ctx, s.indexKey()).Err()
}

// Expired lists keys created at or before cutoff
func (s *RedisStore) Expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
}

// Recent lists entries created after since, newest first.
// Index members whose data already expired are skipped.
func (s *RedisStore) Recent(ctx context.Context, since time.Time, limit int) ([]KeyedEntry, error) {
	by := &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		by.Count = int64(limit)
	}

	keys, err := s.client.ZRevRangeByScore(ctx, s.indexKey(), by).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	dataKeys := make([]string, len(keys))
	for i, k := range keys {
		dataKeys[i] = s.dataKey(k)
	}
	values, err := s.client.MGet(ctx, dataKeys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]KeyedEntry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, KeyedEntry{Key: keys[i], Entry: entry})
	}
	return entries, nil
}

// AcquireLock attempts to acquire a named lock shared by all processes using this store.
// Returns true if the lock was acquired, false if already held.
func (s *RedisStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(name), "1", ttl).Result()
}

// ReleaseLock releases a named lock
func (s *RedisStore) ReleaseLock(ctx context.Context, name string) error {
	return s.client.Del(ctx, s.lockKey(name)).Err()
}

// Ping performs a health check on the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// Stats returns the index size and connection pool counters
func (s *RedisStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	indexed, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}

	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"indexed_entries": indexed,
		"hits":            poolStats.Hits,
		"misses":          poolStats.Misses,
		"timeouts":        poolStats.Timeouts,
		"total_conns":     poolStats.TotalConns,
		"idle_conns":      poolStats.IdleConns,
		"stale_conns":     poolStats.StaleConns,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
