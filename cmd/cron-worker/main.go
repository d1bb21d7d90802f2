package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/partsreserve-backend/internal/cron"
	"github.com/angelmondragon/partsreserve-backend/internal/stock"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/instance"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/migrate"
	"github.com/angelmondragon/partsreserve-backend/pkg/outbox"
	"github.com/angelmondragon/partsreserve-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env, "instance": instance.GetID("cron-0")},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+envName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	registry, err := schedule(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// schedule registers every enabled job at its configured cadence.
func schedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	registry := cron.NewRegistry()
	if cfg.Cron.StockAuditEnabled {
		auditJob, err := cron.NewStockAuditJob(cron.StockAuditJobParams{
			Logger:     logg,
			Repository: stock.NewRepository(dbClient.DB()),
			Metrics:    metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
		})
		if err != nil {
			return nil, fmt.Errorf("stock audit job: %w", err)
		}
		if err := registry.Register(auditJob, cfg.Cron.StockAuditEvery); err != nil {
			return nil, err
		}
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Cron.OutboxRetentionBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	if err := registry.Register(retentionJob, cfg.Cron.OutboxRetentionEvery); err != nil {
		return nil, err
	}
	return registry, nil
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
