package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/app"
	"github.com/inodev-web/alouaoui-school-sub001/internal/auth"
	"github.com/inodev-web/alouaoui-school-sub001/internal/checkin"
	"github.com/inodev-web/alouaoui-school-sub001/internal/config"
	"github.com/inodev-web/alouaoui-school-sub001/internal/db"
	httpserver "github.com/inodev-web/alouaoui-school-sub001/internal/http"
	"github.com/inodev-web/alouaoui-school-sub001/internal/jobs"
	"github.com/inodev-web/alouaoui-school-sub001/internal/lock"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	if cfg.RunMigrations {
		migrator, err := app.NewMigrator(pool, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal("migrator init failed", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		if version, err := migrator.Version(ctx); err == nil {
			logger.Info("migrations applied", zap.Int64("version", version))
		}
		_ = migrator.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// The scanner mutex degrades to its in-process lock and the
			// token denylist no-ops; the service still comes up.
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
		cancel()
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, scanner lock and token denylist run degraded")
	}

	store := db.NewStore(pool)
	denylist := auth.NewDenylist(redisClient, cfg.AccessTokenTTL)
	guard := auth.NewDeviceGuard(store, denylist, logger)
	scanner := lock.NewScannerMutex(lock.NewRedisLeaseStore(redisClient), lock.Options{
		TTL:   cfg.ScannerLockTTL,
		Wait:  cfg.ScannerLockWait,
		Poll:  cfg.ScannerLockPoll,
		Grace: cfg.ScannerLockGrace,
	}, logger)
	engine := access.NewService(store)
	coordinator := checkin.NewCoordinator(store, engine)

	jobs.StartExpirySweep(ctx, cfg, engine, logger)

	server := httpserver.NewServer(cfg, store, engine, coordinator, guard, scanner, denylist, logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
}
