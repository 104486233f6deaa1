package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/passbi/passbi_journeys/internal/api"
	"github.com/passbi/passbi_journeys/internal/cache"
	"github.com/passbi/passbi_journeys/internal/config"
	"github.com/passbi/passbi_journeys/internal/db"
	"github.com/passbi/passbi_journeys/internal/engine"
	"github.com/passbi/passbi_journeys/internal/logging"
	"github.com/passbi/passbi_journeys/internal/metrics"
	"github.com/passbi/passbi_journeys/internal/middleware"
	"github.com/passbi/passbi_journeys/internal/models"
	"github.com/passbi/passbi_journeys/internal/period"
	"github.com/passbi/passbi_journeys/internal/planner"
)

func main() {
	configPath := flag.String("config", getEnv("CONFIG_FILE", "config.yml"), "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logging.LogError(logger, "server stopped", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	m := metrics.New()

	// Redis backs the persistent cache tier and the rate limiter
	var rdb *redis.Client
	if cfg.Cache.Store == "redis" || cfg.RateLimit.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cache.LoadRedisConfigFromEnv())
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("redis connection established")
	}

	var pool *pgxpool.Pool
	if cfg.Cache.Store == "postgres" {
		pool, err = db.NewPool(ctx, db.LoadConfigFromEnv())
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("database connection established")
	}

	store, err := newStore(ctx, cfg.Cache, rdb, pool)
	if err != nil {
		return err
	}

	jc := cache.NewJourneyCache(cfg.JourneyCache(), store, logger, m)
	if store != nil && cfg.Cache.Preload {
		if n, err := jc.Preload(ctx); err != nil {
			logging.LogError(logger, "cache preload failed", err)
		} else {
			logger.Info("journey cache preloaded", "entries", n)
		}
	}

	var holidays []models.HolidayPeriod
	if cfg.HolidaysFile != "" {
		holidays, err = period.LoadHolidaysFile(cfg.HolidaysFile, logger)
		if err != nil {
			return err
		}
		logger.Info("holidays loaded", "count", len(holidays))
	}

	eng := engine.NewRemote(engine.RemoteConfig{BaseURL: cfg.Engine.URL, Timeout: cfg.Engine.Timeout})
	p := planner.New(eng, period.NewSelector(holidays), jc,
		planner.Config{Datasets: cfg.Datasets(), Location: loc},
		logger, planner.WithMetrics(m))

	// load the datasets in the background; queries arriving first wait for it
	go func() {
		if err := p.Initialize(ctx); err != nil {
			logging.LogError(logger, "planner initialization failed", err)
		}
	}()

	checks := []api.HealthCheck{{Name: "engine", Check: eng.Ping}}
	if store != nil {
		checks = append(checks, api.HealthCheck{Name: "cache_store", Check: store.Ping})
	}

	appCfg := api.AppConfig{
		AdminToken: cfg.Server.AdminToken,
		Metrics:    m,
		Logger:     logger,
	}
	if cfg.RateLimit.Enabled {
		appCfg.RateLimiter = middleware.RateLimitMiddleware(rdb, middleware.RateLimits{
			PerSecond: cfg.RateLimit.PerSecond,
			PerDay:    cfg.RateLimit.PerDay,
		}, nil)
	}
	app := api.NewApp(api.NewHandler(p, loc, logger, checks...), appCfg)

	if store != nil {
		go cleanupLoop(ctx, jc, cfg.Cache.CleanupInterval, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("server listening", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logging.LogError(logger, "error during shutdown", err)
	}
	jc.Flush()
	return nil
}

func newStore(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, pool *pgxpool.Pool) (cache.Store, error) {
	switch cfg.Store {
	case "redis":
		return cache.NewRedisStore(rdb, cfg.KeyPrefix), nil
	case "postgres":
		store := cache.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return nil, nil
	}
	return nil, errors.New("unknown cache store: " + cfg.Store)
}

// cleanupLoop removes expired persistent entries every interval
func cleanupLoop(ctx context.Context, jc *cache.JourneyCache, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := jc.CleanupExpired(ctx)
			if err != nil {
				logging.LogError(logger, "cache cleanup failed", err)
				continue
			}
			logger.Info("cache cleanup finished", "removed", removed)
		case <-ctx.Done():
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
