package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatorhub/backend/internal/config"
	"github.com/creatorhub/backend/internal/handler"
	"github.com/creatorhub/backend/internal/logger"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/creatorhub/backend/internal/repository/memory"
	"github.com/creatorhub/backend/internal/router"
	"github.com/creatorhub/backend/internal/scheduler"
	"github.com/creatorhub/backend/internal/service"
	"github.com/creatorhub/backend/pkg/payment"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store error", zap.Error(err))
	}
	defer store.Close()

	health := map[string]handler.Pinger{"store": store}

	// The sweep lock lives in Redis when configured so that several replicas
	// never sweep at the same time.
	var locker scheduler.Locker = scheduler.NewLocalLocker()
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("redis error", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		locker = scheduler.NewRedisLocker(client)
		health["redis"] = redisPinger{client}
	}

	// Initialize services
	billingSvc := service.NewBillingService(store, payment.NewMockGateway(), service.BillingConfig{
		RenewalMode:      cfg.RenewalMode,
		MaxTopUp:         cfg.MaxTopUp,
		SweepConcurrency: cfg.SweepConcurrency,
	}, log)
	tierSvc := service.NewTierService(store, log)
	userSvc := service.NewUserService(store, log)
	authSvc := service.NewAuthService(cfg.JWTSecret)

	runner := scheduler.NewRunner(billingSvc, locker, cfg.SweepInterval, cfg.SweepLockTTL, log)
	runner.Start(ctx)

	r := router.New(ctx, router.Deps{
		Log:         log,
		Auth:        authSvc,
		Tiers:       tierSvc,
		Billing:     billingSvc,
		Users:       userSvc,
		Sweeps:      runner,
		Health:      health,
		CronSecret:  cfg.CronSecret,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   true,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("listening",
		zap.String("addr", addr),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreDriver),
		zap.String("renewal_mode", string(cfg.RenewalMode)),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	if err := repository.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	log.Info("database connected and migrated")
	return repository.NewPostgresStore(db), nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
