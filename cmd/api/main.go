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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/partsreserve-backend/api/controllers"
	"github.com/angelmondragon/partsreserve-backend/api/routes"
	"github.com/angelmondragon/partsreserve-backend/internal/engine"
	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/instance"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/metrics"
	"github.com/angelmondragon/partsreserve-backend/pkg/migrate"
	"github.com/angelmondragon/partsreserve-backend/pkg/redis"
)

const defaultShutdownTimeout = 20 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env, "instance": instance.GetID("local")},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(cfg config.AppConfig) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.Port
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.New(engine.Params{
		DB:      dbClient.DB(),
		Config:  cfg.Engine,
		Logger:  logg,
		Metrics: metrics.NewEngineMetrics(registry),
	})
	if err != nil {
		return fmt.Errorf("wire engine: %w", err)
	}

	addr := listenAddr(cfg.App)
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:      cfg,
			Logger:      logg,
			Engine:      eng,
			Idempotency: redisClient,
			RateLimit:   redisClient,
			Ready: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Gatherer:    registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.App.ReadTimeout,
		WriteTimeout:      cfg.App.WriteTimeout,
	}
	ctx = logg.WithField(ctx, "addr", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(gctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "shutting down api server")
		timeout := cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
