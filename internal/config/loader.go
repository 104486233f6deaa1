package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/passbi/passbi_journeys/internal/cache"
	"github.com/passbi/passbi_journeys/internal/models"
)

// Default returns the configuration used for keys missing from the file
func Default() AppConfig {
	c := cache.DefaultConfig()
	return AppConfig{
		Server: ServerConfig{
			Port:     8080,
			Timezone: "Europe/Paris",
			LogLevel: "info",
		},
		Engine: EngineConfig{
			URL:     "http://localhost:9090",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Store:           "memory",
			MemoryCapacity:  c.MemoryCapacity,
			MemoryTTL:       c.MemoryTTL,
			PersistentTTL:   c.PersistentTTL,
			CleanupInterval: 24 * time.Hour,
			Preload:         true,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 10,
			PerDay:    10000,
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for _, p := range models.AllPeriods() {
		if cfg.Engine.Datasets[string(p)] == "" {
			return nil, fmt.Errorf("invalid config: engine.datasets has no entry for %s", p)
		}
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	cfg.Server.Timezone = getEnv("APP_TIMEZONE", cfg.Server.Timezone)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)
	cfg.Server.AdminToken = getEnv("ADMIN_TOKEN", cfg.Server.AdminToken)

	cfg.Engine.URL = getEnv("ENGINE_URL", cfg.Engine.URL)
	if v := os.Getenv("ENGINE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ENGINE_TIMEOUT %q: %w", v, err)
		}
		cfg.Engine.Timeout = d
	}

	cfg.HolidaysFile = getEnv("HOLIDAYS_FILE", cfg.HolidaysFile)
	cfg.Cache.Store = getEnv("CACHE_STORE", cfg.Cache.Store)
	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", cfg.Cache.KeyPrefix)

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_ENABLED %q: %w", v, err)
		}
		cfg.RateLimit.Enabled = enabled
	}

	return nil
}

// Location loads the service time zone
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Server.Timezone, err)
	}
	return loc, nil
}

// Datasets returns the engine dataset handle of each period
func (c *AppConfig) Datasets() map[models.PeriodID]string {
	out := make(map[models.PeriodID]string, len(c.Engine.Datasets))
	for k, v := range c.Engine.Datasets {
		out[models.PeriodID(k)] = v
	}
	return out
}

// JourneyCache converts the cache section for cache.NewJourneyCache
func (c *AppConfig) JourneyCache() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MemoryCapacity = c.Cache.MemoryCapacity
	cfg.MemoryTTL = c.Cache.MemoryTTL
	cfg.PersistentTTL = c.Cache.PersistentTTL
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
