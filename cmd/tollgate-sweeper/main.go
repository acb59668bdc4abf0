package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/tenants"
)

var (
	dbURL           = flag.String("db-url", getEnv("TOLLGATE_STORE_POSTGRES_URL", "postgres://localhost/tollgate?sslmode=disable"), "PostgreSQL connection URL")
	downgradeGrace  = flag.Duration("downgrade-grace", 72*time.Hour, "How long a tenant may stay past due after its period ends before the free-tier downgrade")
	periodRetention = flag.Duration("period-retention", 90*24*time.Hour, "How long cancelled tenants keep their billing period data")
	sweepSchedule   = flag.String("sweep-schedule", "30 0 * * *", "Cron schedule for the maintenance sweep (default: 00:30 UTC)")
	runOnce         = flag.Bool("run-once", false, "Run the sweep once and exit (for testing)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	sweeper := tenants.NewSweeper(db)

	if *runOnce {
		if err := runSweep(sweeper, logger); err != nil {
			logger.WithError(err).Fatal("Sweep failed")
		}
		logger.Info("Sweep completed successfully")
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*sweepSchedule, func() {
		if err := runSweep(sweeper, logger); err != nil {
			logger.WithError(err).Error("Sweep failed")
		}
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule sweep")
	}

	c.Start()
	logger.WithField("schedule", *sweepSchedule).Info("Tollgate sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	logger.Info("Sweeper stopped")
}

func runSweep(sweeper *tenants.Sweeper, logger *logrus.Logger) error {
	ctx := context.Background()

	downgraded, err := sweeper.DowngradeLapsed(ctx, *downgradeGrace)
	if err != nil {
		return err
	}
	logger.WithField("tenants", downgraded).Info("Downgraded lapsed tenants")

	pruned, err := sweeper.PrunePeriodData(ctx, *periodRetention)
	if err != nil {
		return err
	}
	logger.WithField("tenants", pruned).Info("Pruned aged period data")

	counts, err := sweeper.CountByStatus(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"active":    counts[tenants.StatusActive],
		"past_due":  counts[tenants.StatusPastDue],
		"cancelled": counts[tenants.StatusCancelled],
	}).Info("Tenant status counts")

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
