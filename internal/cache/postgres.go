package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/passbi/passbi_journeys/internal/models"
)

// Querier is the subset of *pgxpool.Pool used by PostgresStore
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore persists journey lists in a journey_cache table.
// Rows have no native expiry; CleanupExpired removes them.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a store over db
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the cache table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS journey_cache (
			key        TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create journey_cache table: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS journey_cache_created_at_idx ON journey_cache (created_at)
	`); err != nil {
		return fmt.Errorf("failed to create journey_cache index: %w", err)
	}

	return nil
}

// Get retrieves a cached entry
func (s *PostgresStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var payload []byte
	var createdAt time.Time
	err := s.db.QueryRow(ctx, `
		SELECT payload, created_at FROM journey_cache WHERE key = $1
	`, key).Scan(&payload, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached journeys: %w", err)
	}

	var journeys []models.JourneyResult
	if err := json.Unmarshal(payload, &journeys); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached journeys: %w", err)
	}

	return &models.CacheEntry{Journeys: journeys, CreatedAt: createdAt}, nil
}

// Put upserts an entry. ttl is enforced by Expired/CleanupExpired, not by the table.
func (s *PostgresStore) Put(ctx context.Context, key string, entry models.CacheEntry, _ time.Duration) error {
	payload, err := json.Marshal(entry.Journeys)
	if err != nil {
		return fmt.Errorf("failed to marshal journeys: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO journey_cache (key, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`, key, payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write cached journeys: %w", err)
	}
	return nil
}

// Delete removes entries by key
func (s *PostgresStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM journey_cache WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("failed to delete cached journeys: %w", err)
	}
	return nil
}

// DeleteAll empties the cache table
func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM journey_cache`); err != nil {
		return fmt.Errorf("failed to clear cached journeys: %w", err)
	}
	return nil
}

// Expired lists keys created at or before cutoff
func (s *PostgresStore) Expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT key FROM journey_cache WHERE created_at <= $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired journeys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan expired key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Recent lists entries created after since, newest first
func (s *PostgresStore) Recent(ctx context.Context, since time.Time, limit int) ([]KeyedEntry, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.Query(ctx, `
		SELECT key, payload, created_at
		FROM journey_cache
		WHERE created_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent journeys: %w", err)
	}
	defer rows.Close()

	var entries []KeyedEntry
	for rows.Next() {
		var key string
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&key, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached journeys: %w", err)
		}

		var journeys []models.JourneyResult
		if err := json.Unmarshal(payload, &journeys); err != nil {
			continue
		}
		entries = append(entries, KeyedEntry{
			Key:   key,
			Entry: models.CacheEntry{Journeys: journeys, CreatedAt: createdAt},
		})
	}
	return entries, rows.Err()
}

// Ping performs a health check on the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
