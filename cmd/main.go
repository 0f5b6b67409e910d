package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirphl/option-sim/internal/backtest"
	"github.com/amirphl/option-sim/internal/blobstore"
	"github.com/amirphl/option-sim/internal/config"
	"github.com/amirphl/option-sim/internal/db"
	"github.com/amirphl/option-sim/internal/db/conf"
	"github.com/amirphl/option-sim/internal/metrics"
	"github.com/amirphl/option-sim/internal/notifier"
	"github.com/amirphl/option-sim/internal/resolver"
	"github.com/amirphl/option-sim/internal/store"
	"github.com/amirphl/option-sim/internal/utils"
	"github.com/lib/pq"
)

func main() {
	// Load configuration
	cfg := config.MustLoadConfig()
	utils.SetupLogger(cfg.LogLevel, cfg.LogFile)
	log := utils.GetLogger()
	log.Info().Str("mode", cfg.Mode).Str("expiry", cfg.Expiry).Msg("starting option-sim")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	// Run migrations if enabled
	if cfg.RunMigration || cfg.Mode == config.ModeMigrate {
		if err := runMigrations(ctx, cfg.DBConnStr); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		if cfg.Mode == config.ModeMigrate {
			return
		}
	}

	var storage db.Storage
	if cfg.DBConnStr != "" {
		dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create DB config")
		}
		defer dbConfig.DB.Close()

		dbadapter, err := db.New(*dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize database")
		}
		storage = dbadapter
		log.Info().Msg("connected to Postgres")
	}

	var remote blobstore.Store
	if cfg.Blob.Endpoint != "" {
		s3, err := blobstore.NewS3(blobstore.S3Config{
			Endpoint:  cfg.Blob.Endpoint,
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			UseSSL:    cfg.Blob.UseSSL,
			Timeout:   cfg.Blob.Timeout,
			RPS:       cfg.Blob.RPS,
			Location:  cfg.Location,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create blob store")
		}
		remote = s3
	} else {
		log.Warn().Msg("no blob endpoint configured, remote tiers disabled")
	}

	series := store.New(store.Config{
		Local:            blobstore.NewDir(cfg.CacheDir, cfg.Location),
		Remote:           remote,
		IndexCacheKey:    cfg.IndexCacheKey,
		IndexPrefix:      cfg.IndexPrefix,
		CombinedCacheKey: cfg.CombinedCacheKey,
		OptionPrefix:     cfg.OptionPrefix,
		TTL:              cfg.CacheTTL,
		Location:         cfg.Location,
	})

	if cfg.Mode == config.ModeRefreshCache {
		n, err := series.RefreshCombined(ctx, cfg.Month)
		if err != nil {
			log.Fatal().Err(err).Str("month", cfg.Month).Msg("failed to refresh combined cache")
		}
		log.Info().Int("rows", n).Str("month", cfg.Month).Msg("combined cache refreshed")
		return
	}

	res := resolver.New(cfg.ResolverTimeout, resolver.Chain(resolver.ChainConfig{
		Local:        blobstore.NewDir(cfg.DataDir, cfg.Location),
		Combined:     series.Combined,
		Remote:       remote,
		Underlying:   cfg.Underlying,
		OptionPrefix: cfg.OptionPrefix,
		Location:     cfg.Location,
	})...)

	// Set up notification system
	var n notifier.Notifier = notifier.Nop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		n = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotificationRetries, cfg.NotificationDelay)
	}

	runner := backtest.NewRunner(cfg, series, res, storage, n)

	var err error
	switch cfg.Mode {
	case config.ModeSignals:
		_, err = runner.RunSignals(ctx)
	case config.ModeBacktest:
		_, err = runner.RunBacktest(ctx)
	case config.ModePipeline:
		_, err = runner.RunPipeline(ctx)
	default:
		log.Fatal().Str("mode", cfg.Mode).Msg("unsupported mode")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
	log.Info().Msg("done")
}

// runMigrations creates the database if it doesn't exist and runs the schema.sql script
func runMigrations(ctx context.Context, connStr string) error {
	log := utils.GetLogger()
	log.Info().Msg("running database migrations")

	// Parse connection string to extract database name
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Same server, maintenance database
	base := *u
	base.Path = "/postgres"

	baseDB, err := sql.Open("postgres", base.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	// Check if our database exists
	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		log.Info().Str("database", dbName).Msg("creating database")
		_, err = baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	schemaPath, err := conf.FindSchema()
	if err != nil {
		return err
	}
	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	if _, err = db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema.sql: %w", err)
	}

	log.Info().Msg("database migrations completed successfully")
	return nil
}
