package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/passbi/passbi_journeys/internal/cache"
	"github.com/passbi/passbi_journeys/internal/config"
	"github.com/passbi/passbi_journeys/internal/db"
	"github.com/passbi/passbi_journeys/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to the YAML configuration file")
	yes := flag.Bool("yes", false, "Skip the confirmation prompt of clear")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cache-maint [--config=config.yml] [--yes] ping|stats|recent|cleanup|clear")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to open %s cache store: %v", cfg.Cache.Store, err)
	}
	defer closeStore()

	logger := logging.NewStructuredLogger(os.Stderr, logging.ParseLevel(cfg.Server.LogLevel))
	jc := cache.NewJourneyCache(cfg.JourneyCache(), store, logger, nil)

	switch cmd := flag.Arg(0); cmd {
	case "ping":
		if err := store.Ping(ctx); err != nil {
			log.Fatalf("Store unreachable: %v", err)
		}
		log.Printf("Store %s is reachable", cfg.Cache.Store)

	case "stats":
		rs, ok := store.(*cache.RedisStore)
		if !ok {
			log.Fatalf("stats is only available for the redis store")
		}
		stats, err := rs.Stats(ctx)
		if err != nil {
			log.Fatalf("Failed to read stats: %v", err)
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-20s %v\n", k, stats[k])
		}

	case "recent":
		entries, err := store.Recent(ctx, time.Now().Add(-cfg.Cache.PersistentTTL), cfg.Cache.MemoryCapacity)
		if err != nil {
			log.Fatalf("Failed to list entries: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%s  %s  %d journeys\n", e.Entry.CreatedAt.Format(time.RFC3339), e.Key, len(e.Entry.Journeys))
		}
		log.Printf("%d live entries (newest first)", len(entries))

	case "cleanup":
		start := time.Now()
		removed, err := jc.CleanupExpired(ctx)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		log.Printf("Removed %d expired entries in %v", removed, time.Since(start))

	case "clear":
		if !*yes {
			fmt.Println("This will DELETE every cached journey!")
			fmt.Print("Continue? (yes/no): ")
			var confirm string
			fmt.Scanln(&confirm)
			if confirm != "yes" && confirm != "y" {
				log.Println("Clear cancelled")
				return
			}
		}
		if err := jc.ClearAll(ctx); err != nil {
			log.Fatalf("Clear failed: %v", err)
		}
		log.Println("Journey cache cleared")

	default:
		log.Printf("Unknown command %q", cmd)
		flag.Usage()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, func(), error) {
	switch cfg.Store {
	case "redis":
		rdb, err := cache.NewRedisClient(ctx, cache.LoadRedisConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(rdb, cfg.KeyPrefix), func() { rdb.Close() }, nil
	case "postgres":
		pool, err := db.NewPool(ctx, db.LoadConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		return cache.NewPostgresStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("cache store %q has no persistent tier", cfg.Store)
}
