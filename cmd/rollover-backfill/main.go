// Command rollover-backfill re-runs the monthly phase rollover for a period,
// for one tenant or for all active tenants. Runs already recorded for the
// period are skipped, so re-running after a partial failure is safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"crm_core_backend/internal/events"
	phasesrepo "crm_core_backend/internal/phases/repository"
	phasesservice "crm_core_backend/internal/phases/service"
	"crm_core_backend/platform/config"
	"crm_core_backend/platform/db"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

func main() {
	var (
		period = flag.String("period", "", "rollover period as YYYY-MM (required)")
		tenant = flag.String("tenant", "", "tenant UUID; empty runs every active tenant")
	)
	flag.Parse()

	if *period == "" {
		fmt.Fprintln(os.Stderr, "usage: rollover-backfill -period YYYY-MM [-tenant UUID]")
		os.Exit(2)
	}
	if _, err := time.Parse("2006-01", *period); err != nil {
		fmt.Fprintf(os.Stderr, "invalid period %q: must be YYYY-MM\n", *period)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to database:", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := phasesservice.NewService(phasesrepo.NewRepository(pool), events.NewInMemoryBus(log), log)

	if *tenant != "" {
		tenantID, err := uuid.Parse(*tenant)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid tenant %q: %v\n", *tenant, err)
			os.Exit(2)
		}
		processed, err := svc.Rollover(ctx, tenantID, *period)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rollover failed:", err)
			os.Exit(1)
		}
		fmt.Printf("rollover %s for tenant %s: %d agents processed\n", *period, tenantID, processed)
		return
	}

	if err := svc.RolloverAll(ctx, *period); err != nil {
		fmt.Fprintln(os.Stderr, "rollover failed:", err)
		os.Exit(1)
	}
	fmt.Printf("rollover %s completed for all active tenants\n", *period)
}
