// Package main provides the daily feature build entry point.
// Loads raw daily prices for one ticker and date range, derives features,
// and writes them to the feature store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daily-feature-store/internal/config"
	"daily-feature-store/internal/domain"
	"daily-feature-store/internal/logging"
	"daily-feature-store/internal/observability"
	"daily-feature-store/internal/pipeline"
	"daily-feature-store/internal/storage"
	chstore "daily-feature-store/internal/storage/clickhouse"
	"daily-feature-store/internal/storage/memory"
	"daily-feature-store/internal/storage/migrations"
	pgstore "daily-feature-store/internal/storage/postgres"
)

const (
	sinkPostgres   = "postgres"
	sinkClickhouse = "clickhouse"
)

type options struct {
	mode        pipeline.Mode
	ticker      string
	start, end  time.Time
	runID       string
	overwrite   bool
	sink        string
	useMemory   bool
	migrate     bool
	purgeRunID  string
	postgresDSN string
	pushgateway string
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	mode := flag.String("mode", "", "Run mode: full or by-date-range")
	ticker := flag.String("ticker", "", "Ticker symbol, e.g. AAPL")
	startDate := flag.String("start-date", "", "First date to process (YYYY-MM-DD, inclusive)")
	endDate := flag.String("end-date", "", "Last date to process (YYYY-MM-DD, inclusive)")
	runID := flag.String("run-id", "", "Run identifier stamped on written rows (generated when empty)")
	overwrite := flag.String("overwrite", "false", "Replace existing rows in the written date span: true or false")
	sink := flag.String("sink", sinkPostgres, "Feature sink: postgres or clickhouse")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (built from PG_* vars when empty)")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage seeded with synthetic prices")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations before running")
	purgeRunID := flag.String("purge-run-id", "", "Delete all feature rows written by this run id and exit")
	pushgateway := flag.String("pushgateway", cfg.PushgatewayURL, "Prometheus Pushgateway URL (optional)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.New(*logLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("build-features")

	cfg.ClickhouseDSN = *clickhouseDSN

	opts := options{
		ticker:      strings.TrimSpace(*ticker),
		runID:       *runID,
		sink:        *sink,
		useMemory:   *useMemory,
		migrate:     *migrate,
		purgeRunID:  *purgeRunID,
		postgresDSN: *postgresDSN,
		pushgateway: *pushgateway,
	}
	if opts.purgeRunID == "" {
		if err := parseRunFlags(&opts, *mode, *startDate, *endDate, *overwrite); err != nil {
			logger.Error("invalid arguments", zap.Error(err))
			flag.Usage()
			os.Exit(2)
		}
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("received signal, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	err = run(ctx, cfg, opts, logger)
	pushMetrics(opts.pushgateway, logger)
	if err != nil {
		logger.Error("feature build failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseRunFlags(opts *options, mode, startDate, endDate, overwrite string) error {
	var err error
	if opts.mode, err = pipeline.ParseMode(mode); err != nil {
		return err
	}
	if opts.ticker == "" {
		return errors.New("--ticker is required")
	}
	if opts.start, err = domain.ParseDate(startDate); err != nil {
		return fmt.Errorf("--start-date: %w", err)
	}
	if opts.end, err = domain.ParseDate(endDate); err != nil {
		return fmt.Errorf("--end-date: %w", err)
	}
	switch strings.ToLower(overwrite) {
	case "true":
		opts.overwrite = true
	case "false":
		opts.overwrite = false
	default:
		return fmt.Errorf("--overwrite must be true or false, got %q", overwrite)
	}
	if opts.sink != sinkPostgres && opts.sink != sinkClickhouse {
		return fmt.Errorf("--sink must be postgres or clickhouse, got %q", opts.sink)
	}
	if opts.runID == "" {
		opts.runID = uuid.NewString()
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) error {
	stores, cleanup, err := createStores(ctx, cfg, opts, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	if opts.purgeRunID != "" {
		n, err := stores.features.DeleteByRunID(ctx, opts.purgeRunID)
		if err != nil {
			return fmt.Errorf("purge run %s: %w", opts.purgeRunID, err)
		}
		logger.Info("purged feature rows", zap.String("run_id", opts.purgeRunID), zap.Int64("rows", n))
		return nil
	}

	builder := pipeline.NewBuilder(stores.prices, pipeline.NewWriter(stores.features, logger), logger)
	result, err := builder.Run(ctx, pipeline.Request{
		Mode:      opts.mode,
		Ticker:    opts.ticker,
		Start:     opts.start,
		End:       opts.end,
		RunID:     opts.runID,
		Overwrite: opts.overwrite,
	})
	if err != nil {
		return err
	}

	if result.NoData {
		logger.Warn("nothing to write",
			zap.String("ticker", result.Ticker),
			zap.String("start", opts.start.Format(domain.DateLayout)),
			zap.String("end", opts.end.Format(domain.DateLayout)),
		)
		return nil
	}

	logger.Info("feature build completed",
		zap.String("ticker", result.Ticker),
		zap.String("run_id", result.RunID),
		zap.Int64("rows_written", result.RowsWritten),
		zap.String("from", result.From.Format(domain.DateLayout)),
		zap.String("to", result.To.Format(domain.DateLayout)),
	)
	return nil
}

// storeSet holds the source and sink for one run.
type storeSet struct {
	prices   storage.PriceStore
	features storage.FeatureStore
}

func createStores(ctx context.Context, cfg *config.Config, opts options, logger *zap.Logger) (*storeSet, func(), error) {
	if opts.useMemory {
		logger.Info("using in-memory storage with synthetic prices")
		prices := memory.NewPriceStore()
		if opts.purgeRunID == "" {
			if err := pipeline.LoadFixtures(ctx, prices, []string{opts.ticker}, opts.start, opts.end); err != nil {
				return nil, nil, err
			}
		}
		return &storeSet{prices: prices, features: memory.NewFeatureStore()}, func() {}, nil
	}

	dsn := opts.postgresDSN
	if dsn == "" {
		var err error
		if dsn, err = cfg.PostgresDSN(); err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	cleanups := []func(){pool.Close}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	schemas := cfg.Schemas()
	if opts.migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, schemas, cfg.SchemaAllow...); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	prices, err := pgstore.NewPriceStore(pool, schemas.Raw, cfg.SchemaAllow...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var features storage.FeatureStore
	switch opts.sink {
	case sinkClickhouse:
		if cfg.ClickhouseDSN == "" {
			cleanup()
			return nil, nil, errors.New("--clickhouse-dsn (or CLICKHOUSE_DSN) is required for the clickhouse sink")
		}
		var conn *chstore.Conn
		if opts.migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		features = chstore.NewFeatureStore(conn)
		logger.Warn("clickhouse sink cannot replace atomically; overlapping overwrite runs may leave duplicates")
	default:
		fs, err := pgstore.NewFeatureStore(pool, schemas.Analytics, cfg.SchemaAllow...)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		features = fs
	}

	return &storeSet{prices: prices, features: features}, cleanup, nil
}

func pushMetrics(url string, logger *zap.Logger) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := observability.Push(ctx, url, "build_features"); err != nil {
		logger.Warn("failed to push metrics", zap.Error(err))
	}
}
