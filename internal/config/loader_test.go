package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbi/passbi_journeys/internal/models"
)

const validConfig = `
server:
  port: 9000
  timezone: Europe/Paris
engine:
  url: http://engine:9090
  timeout: 10s
  datasets:
    weekday_school_on: data/weekday_school_on.bin
    weekday_school_off: data/weekday_school_off.bin
    saturday: data/saturday.bin
    sunday: data/sunday.bin
holidays_file: data/holidays.yml
cache:
  store: redis
  memory_ttl: 15m
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Store)
	assert.Equal(t, 15*time.Minute, cfg.Cache.MemoryTTL)

	t.Run("Missing keys keep defaults", func(t *testing.T) {
		assert.Equal(t, 50, cfg.Cache.MemoryCapacity)
		assert.Equal(t, 24*time.Hour, cfg.Cache.PersistentTTL)
		assert.Equal(t, "info", cfg.Server.LogLevel)
	})

	t.Run("Datasets are keyed by period", func(t *testing.T) {
		assert.Equal(t, "data/saturday.bin", cfg.Datasets()[models.PeriodSaturday])
	})

	t.Run("Journey cache settings", func(t *testing.T) {
		jc := cfg.JourneyCache()
		assert.Equal(t, 15*time.Minute, jc.MemoryTTL)
		assert.Equal(t, 50, jc.MemoryCapacity)
	})

	t.Run("Location", func(t *testing.T) {
		loc, err := cfg.Location()
		require.NoError(t, err)
		assert.Equal(t, "Europe/Paris", loc.String())
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "8181")
	t.Setenv("ENGINE_URL", "http://other:1234")
	t.Setenv("CACHE_STORE", "postgres")
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "http://other:1234", cfg.Engine.URL)
	assert.Equal(t, "postgres", cfg.Cache.Store)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"Unknown cache store", validConfig + "  store: memcached\n", nil},
		{"Missing period dataset", `
server:
  port: 9000
  timezone: UTC
engine:
  url: http://engine:9090
  datasets:
    saturday: sat.bin
`, nil},
		{"Unknown period key", `
server:
  port: 9000
  timezone: UTC
engine:
  url: http://engine:9090
  datasets:
    weekday_school_on: a.bin
    weekday_school_off: b.bin
    saturday: c.bin
    sunday: d.bin
    holiday: e.bin
`, nil},
		{"Engine URL without scheme", `
server:
  port: 9000
  timezone: UTC
engine:
  url: engine
  datasets:
    weekday_school_on: a.bin
    weekday_school_off: b.bin
    saturday: c.bin
    sunday: d.bin
`, nil},
		{"Bad timezone", validConfig, map[string]string{"APP_TIMEZONE": "Mars/Olympus"}},
		{"Bad port override", validConfig, map[string]string{"API_PORT": "eighty"}},
		{"Malformed YAML", "server: [", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
