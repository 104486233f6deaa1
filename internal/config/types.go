package config

import "time"

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port     int    `yaml:"port" validate:"gt=0,lte=65535"`
	Timezone string `yaml:"timezone" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// AdminToken guards /admin routes; admin routes are disabled when empty
	AdminToken string `yaml:"admin_token"`
}

// EngineConfig points at the routing engine and its per-period datasets
type EngineConfig struct {
	URL      string            `yaml:"url" validate:"required,url"`
	Timeout  time.Duration     `yaml:"timeout" validate:"gte=0"`
	Datasets map[string]string `yaml:"datasets" validate:"required,dive,keys,oneof=weekday_school_on weekday_school_off saturday sunday,endkeys,required"`
}

// CacheConfig contains journey cache configuration
type CacheConfig struct {
	Store           string        `yaml:"store" validate:"oneof=memory redis postgres"`
	KeyPrefix       string        `yaml:"key_prefix"`
	MemoryCapacity  int           `yaml:"memory_capacity" validate:"gt=0"`
	MemoryTTL       time.Duration `yaml:"memory_ttl" validate:"gt=0"`
	PersistentTTL   time.Duration `yaml:"persistent_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
	Preload         bool          `yaml:"preload"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerSecond int  `yaml:"per_second" validate:"gte=0"`
	PerDay    int  `yaml:"per_day" validate:"gte=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server       ServerConfig    `yaml:"server" validate:"required"`
	Engine       EngineConfig    `yaml:"engine" validate:"required"`
	HolidaysFile string          `yaml:"holidays_file"`
	Cache        CacheConfig     `yaml:"cache"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}
