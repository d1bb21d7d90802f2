package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/db"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
	"github.com/angelmondragon/partsreserve-backend/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	embedded bool
	name     string
	version  string
}

// offline commands only touch the migration files.
var offline = []string{"create", "validate"}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|redo|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.BoolVar(&opts.embedded, "embedded", false, "apply the migrations compiled into this binary instead of -dir")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env},
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	if slices.Contains(offline, opts.cmd) {
		return runOffline(opts)
	}
	if cfg.FeatureFlags.UseSQLite {
		return errors.New("goose migrations target postgres; sqlite schemas are auto-migrated")
	}

	client, err := db.New(ctx, cfg.DB, false, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	source := opts.dir
	if opts.embedded {
		source = ""
	}
	if err := apply(ctx, sqlDB, source, opts); err != nil {
		return err
	}
	logg.Info(ctx, "migrate complete")
	return nil
}

func runOffline(opts options) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migrations valid")
	}
	return nil
}

func apply(ctx context.Context, sqlDB *sql.DB, source string, opts options) error {
	switch opts.cmd {
	case "up", "down", "status", "redo":
		return migrate.Run(ctx, sqlDB, source, opts.cmd)
	case "version":
		if opts.version == "" {
			return errors.New("-version is required for version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, source, opts.version)
	}
	return fmt.Errorf("unknown -cmd %q", opts.cmd)
}
