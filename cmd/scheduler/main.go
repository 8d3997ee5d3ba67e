package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	allocrepo "crm_core_backend/internal/allocation/repository"
	allocservice "crm_core_backend/internal/allocation/service"
	"crm_core_backend/internal/events"
	phasesrepo "crm_core_backend/internal/phases/repository"
	phasesservice "crm_core_backend/internal/phases/service"
	prodrepo "crm_core_backend/internal/productivity/repository"
	prodservice "crm_core_backend/internal/productivity/service"
	"crm_core_backend/internal/scheduler"
	"crm_core_backend/platform/cache"
	"crm_core_backend/platform/config"
	"crm_core_backend/platform/db"
	"crm_core_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	summaryCache, err := cache.New(cfg)
	if err != nil {
		log.Error("failed to initialize cache", "error", err)
		panic("failed to initialize cache: " + err.Error())
	}
	if summaryCache != nil {
		defer summaryCache.Close()
	}

	// Worker-side service wiring (no HTTP handlers required).
	phasesSvc := phasesservice.NewService(phasesrepo.NewRepository(pool), eventBus, log)
	allocationSvc := allocservice.NewService(allocrepo.NewRepository(pool), phasesSvc, eventBus, log)
	productivitySvc := prodservice.NewService(prodrepo.NewRepository(pool), summaryCache, eventBus, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer client.Close()

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, client, phasesSvc, allocationSvc, productivitySvc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
