package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/gridshift-energy/solar-profiler/pkg/config"
	"github.com/gridshift-energy/solar-profiler/pkg/database"
	"github.com/gridshift-energy/solar-profiler/pkg/logging"
	"github.com/gridshift-energy/solar-profiler/pkg/repositories"
	"github.com/gridshift-energy/solar-profiler/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `Usage: solar-profiler [-config path] <command>

Commands:
  migrate        apply pending database migrations
  import-sites   fetch site metadata from the portal API
  download-csv   download chart-export CSVs for new sites
  upload-csv     ingest downloaded CSVs into the production table
  calc-profiles  compute reference-year generation profiles
  all            run the full pipeline in order
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting solar-profiler",
		zap.String("command", command),
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, logger); err != nil {
		logger.Fatal("Command failed", zap.String("command", command), zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, command string, cfg *config.Config, logger *zap.Logger) error {
	if command == "migrate" {
		return runMigrations(cfg, logger)
	}

	connStr := cfg.Database.ConnectionString()
	logger.Info("Connecting to database",
		zap.String("connection", logging.SanitizeConnectionString(connStr)))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %s", logging.SanitizeError(err))
	}
	defer db.Close()

	sites := repositories.NewSiteRepository(db)
	production := repositories.NewProductionRepository(db)
	profiles := repositories.NewProfileRepository(db)

	importer := services.NewSiteImporter(cfg.API, sites, logger)
	downloader := services.NewCSVDownloader(cfg.Download, sites, logger)
	uploader := services.NewProductionUploader(cfg.Download, sites, production, logger)
	profiler := services.NewProfileService(sites, production, profiles, cfg.Profile, logger)

	switch command {
	case "import-sites":
		_, err = importer.ImportAll(ctx)
	case "download-csv":
		_, err = downloader.DownloadAll(ctx)
	case "upload-csv":
		_, err = uploader.UploadAll(ctx)
	case "calc-profiles":
		_, err = profiler.CalculateAll(ctx)
	case "all":
		if err = runMigrations(cfg, logger); err != nil {
			return err
		}
		if _, err = importer.ImportAll(ctx); err != nil {
			return err
		}
		if _, err = downloader.DownloadAll(ctx); err != nil {
			return err
		}
		if _, err = uploader.UploadAll(ctx); err != nil {
			return err
		}
		_, err = profiler.CalculateAll(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	return err
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
