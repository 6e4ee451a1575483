package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/cache"
	"schoolattend/internal/config"
	"schoolattend/internal/logging"
	"schoolattend/internal/observability"
	"schoolattend/internal/queue"
	"schoolattend/internal/store"
	"schoolattend/internal/student"
	"schoolattend/internal/worker"
)

// Worker consumes attendance events from redis and keeps the roster summary cache warm.
func main() {
	cfg := config.Load()

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer lg.Sync()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, "worker")
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		lg.Base.Fatal("standalone worker needs QUEUE_BACKEND=redis; the api consumes the memory queue itself")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			lg.Base.Fatal("db connect failed", zap.Error(err))
		}
		lg.Base.Warn("db not reachable, will retry on first event", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = rdb.Close() }()
	if !rdb.Healthy(ctx) {
		lg.Base.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr))
	}

	var kv cache.Store = cache.NewRedis(rdb.Client, "schoolattend:")
	if cfg.CacheBackend != "redis" {
		lg.Base.Warn("cache backend is not redis, refreshed summaries are not shared with the api")
		kv = cache.NewMemory()
	}

	students := student.NewService(student.NewPGRepository(db.Client), lg.Base.Named("student"))
	att := attendance.NewService(attendance.NewPGRepository(db.Client), students, nil, kv, cfg.SummaryCacheTTL, lg.Base.Named("attendance"))
	q := queue.NewRedisQueue(rdb.Client, "attendance:events", lg.Base)

	if err := worker.Run(ctx, q, att, lg.Base.Named("worker")); err != nil {
		lg.Base.Fatal("queue consume init failed", zap.Error(err))
	}
}
