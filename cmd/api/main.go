package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolattend/internal/account"
	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/cache"
	"schoolattend/internal/config"
	"schoolattend/internal/httpapi"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/logging"
	"schoolattend/internal/observability"
	"schoolattend/internal/queue"
	"schoolattend/internal/store"
	"schoolattend/internal/store/memory"
	"schoolattend/internal/student"
	"schoolattend/internal/worker"
)

var version = "dev"

func main() {
	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer lg.Sync()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if err := runHTTP(cfg, lg); err != nil {
		lg.Base.Fatal("http server failed", zap.Error(err))
	}
}

type repositories struct {
	accounts   account.Repository
	students   student.Repository
	attendance attendance.Repository
}

func runHTTP(cfg config.App, logs *logging.Log) error {
	lg := logs.Base
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]httpapi.HealthCheck{}

	var repos repositories
	if cfg.DatabaseURL == "" && !cfg.IsProduction() {
		lg.Warn("DATABASE_URL not set, using in-memory store")
		mem := memory.New()
		repos = repositories{mem.Accounts(), mem.Students(), mem.Ledger()}
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			if db == nil {
				return err
			}
			lg.Warn("db not reachable", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, db.Client, lg); err != nil {
				return err
			}
		}
		repos = repositories{
			account.NewPGRepository(db.Client),
			student.NewPGRepository(db.Client),
			attendance.NewPGRepository(db.Client),
		}
		health["db"] = func(ctx context.Context) bool { return db.Ping(ctx) == nil }
	}

	var rdb *store.Redis
	if cfg.UsesRedis() {
		rdb = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		health["redis"] = rdb.Healthy
	}

	var kv cache.Store
	switch cfg.CacheBackend {
	case "redis":
		kv = cache.NewRedis(rdb.Client, "schoolattend:")
	case "memory":
		kv = cache.NewMemory()
	default:
		kv = cache.Nop{}
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(rdb.Client, "attendance:events", lg)
	}

	accounts := account.NewService(repos.accounts, kv, cfg.UserCacheTTL, account.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		TTL:        cfg.AccessTTL,
	}, lg.Named("account"))
	students := student.NewService(repos.students, lg.Named("student"))
	att := attendance.NewService(repos.attendance, students, q, kv, cfg.SummaryCacheTTL, lg.Named("attendance"))
	students.OnChange(att)

	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.Run(ctx, q, att, lg.Named("worker")); err != nil {
				lg.Error("in-process worker stopped", zap.Error(err))
			}
		}()
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Accounts:    accounts,
		Students:    students,
		Attendance:  att,
		Gate:        auth.NewGate(accounts, cfg.JWTSigningKey, cfg.JWTIssuer),
		Log:         lg,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		LoginLimit: httpmiddleware.NewTokenBucket(10, 10).
			WithMessage("Too many login attempts, please try again later"),
		Health:   health,
		LogLevel: logs.Level,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown", zap.Error(err))
	}
	lg.Info("server exited")
	return nil
}

func init() {
	if v, ok := os.LookupEnv("APP_VERSION"); ok && v != "" {
		version = v
	}
}
