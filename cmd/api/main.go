package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_core_backend/internal/allocation"
	"crm_core_backend/internal/commissions"
	"crm_core_backend/internal/events"
	apphttp "crm_core_backend/internal/http"
	"crm_core_backend/internal/http/router"
	"crm_core_backend/internal/notification"
	"crm_core_backend/internal/phases"
	"crm_core_backend/internal/productivity"
	"crm_core_backend/internal/scheduler"
	"crm_core_backend/migrations"
	"crm_core_backend/platform/cache"
	"crm_core_backend/platform/config"
	"crm_core_backend/platform/db"
	"crm_core_backend/platform/logger"
	"crm_core_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	summaryCache, err := cache.New(cfg)
	if err != nil {
		log.Error("failed to initialize cache", "error", err)
		panic("failed to initialize cache: " + err.Error())
	}
	if summaryCache != nil {
		defer summaryCache.Close()
		log.Info("redis cache initialized")
	} else {
		log.Warn("REDIS_URL not configured; productivity cache disabled")
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	phasesModule := phases.NewModule(pool, eventBus, val, log)

	// Allocation draws from the phase weights; commissions share the phase
	// repository's transaction so a sale close updates both atomically.
	allocationModule := allocation.NewModule(pool, phasesModule.Service(), eventBus, val, log)
	commissionsModule := commissions.NewModule(pool, phasesModule.Repository(), phasesModule.Service(), eventBus, val, log)
	productivityModule := productivity.NewModule(pool, summaryCache, eventBus, val, log)

	// Background job bridge: sale closes trigger productivity recomputes,
	// unassigned leads get delayed sweep retries.
	if cfg.GetRedisURL() != "" {
		jobClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer jobClient.Close()
		scheduler.NewEnqueuer(jobClient, log).Register(eventBus)
	} else {
		log.Warn("REDIS_URL not configured; background job enqueueing disabled")
	}

	// Notification subscribes to domain events (not HTTP-facing)
	if cfg.IsEmailEnabled() {
		notifier := notification.NewNotifier(notification.NewMailer(cfg), notification.NewPgxDirectory(pool), log)
		notifier.Register(eventBus)
		log.Info("email notifications enabled", "from", cfg.GetEmailFromAddress())
	} else {
		log.Warn("SMTP not configured; email notifications disabled")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			phasesModule,
			allocationModule,
			commissionsModule,
			productivityModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
