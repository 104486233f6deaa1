package db

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "journeys")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "journeys", cfg.Database)
	assert.Equal(t, int32(4), cfg.MaxConns)
	assert.Equal(t, "disable", cfg.SSLMode)
}

func TestPoolConfig(t *testing.T) {
	t.Run("Direct connection keeps prepared statements", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 5432, Database: "passbi", User: "postgres", SSLMode: "disable", MinConns: 1, MaxConns: 3}
		pc, err := cfg.PoolConfig()
		require.NoError(t, err)
		assert.Equal(t, int32(3), pc.MaxConns)
		assert.Equal(t, time.Hour, pc.MaxConnLifetime)
		assert.NotEqual(t, pgx.QueryExecModeSimpleProtocol, pc.ConnConfig.DefaultQueryExecMode)
	})

	t.Run("Pooler port switches to simple protocol", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 6543, Database: "passbi", User: "postgres", SSLMode: "disable", MinConns: 1, MaxConns: 3}
		pc, err := cfg.PoolConfig()
		require.NoError(t, err)
		assert.Equal(t, pgx.QueryExecModeSimpleProtocol, pc.ConnConfig.DefaultQueryExecMode)
	})
}

func TestConnString(t *testing.T) {
	cfg := &Config{Host: "h", Port: 5432, Database: "d", User: "u", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 dbname=d user=u sslmode=disable", cfg.ConnString())

	cfg.Password = "it's"
	assert.Equal(t, `host=h port=5432 dbname=d user=u sslmode=disable password='it\'s'`, cfg.ConnString())

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "it's", pc.ConnConfig.Password)
}
