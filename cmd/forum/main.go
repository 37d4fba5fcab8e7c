// Command forum runs the forum synchronization core: session sync against the
// auth provider, dual-location content replication and the live push
// subscription manager, wired to the configured store backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"aniforum/internal/authprovider"
	"aniforum/internal/cache"
	"aniforum/internal/config"
	"aniforum/internal/mirror"
	"aniforum/internal/observability"
	"aniforum/internal/progress"
	"aniforum/internal/replicator"
	"aniforum/internal/session"
	"aniforum/internal/store"
	"aniforum/internal/subscriptions"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.Component("main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st  store.Store
		plc cache.Cache
	)
	switch cfg.StoreBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis unreachable: %v", err)
		}
		defer rdb.Close()
		st = store.NewRedisStore(rdb)
		plc = cache.NewRedis(rdb)
	case "sqlite":
		sqlStore, err := store.NewSQLStore(cfg.DatabasePath, observability.Component("store"))
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		st = sqlStore
		plc = cache.NewMemory()
	default:
		st = store.NewMemoryStore()
		plc = cache.NewMemory()
	}

	provider := authprovider.NewLocalProvider(cfg.JWTSecret)
	synchronizer := session.NewSynchronizer(provider, st, plc)
	synchronizer.ObserveIdentity(ctx)

	forumMirror := mirror.New()
	meter := progress.NewMeter(plc)
	if err := meter.Load(ctx); err != nil {
		logger.Warn("progress tally load failed", "error", err.Error())
	}

	rep := replicator.New(st, synchronizer, forumMirror, meter)
	subs := subscriptions.NewManager(st, synchronizer, forumMirror)

	if _, err := rep.FetchCategories(ctx); err != nil {
		logger.Warn("category preload failed", "error", err.Error())
	}

	logger.Info("forum core started",
		"backend", cfg.StoreBackend,
		"env", cfg.Env,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	subs.UnsubscribeAll()
	cancel()
	if err := synchronizer.SignOut(context.Background()); err != nil {
		logger.Warn("sign out on shutdown failed", "error", err.Error())
	}
}
