package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/curate/curator/pkg/catalog"
	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
	"github.com/malbeclabs/curate/curator/pkg/metrics"
	"github.com/malbeclabs/curate/curator/pkg/pipeline"
	"github.com/malbeclabs/curate/curator/pkg/schema"
	"github.com/malbeclabs/curate/curator/pkg/settings"
	"github.com/malbeclabs/curate/curator/pkg/storage"
	"github.com/malbeclabs/curate/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMaxConcurrency = 8
	defaultWriteBatchSize = 50_000
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (disabled when empty)")
	migrationsEnableFlag := flag.Bool("migrations-enable", false, "enable ClickHouse migrations on startup")
	createDatabaseFlag := flag.Bool("create-database", false, "create the ClickHouse database before startup (for dev use)")

	// ClickHouse configuration (optional)
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse server address (e.g., localhost:9000, or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")

	// Curation configuration
	entityKeyFlag := flag.String("entity-key", "", "column identifying an entity for SCD2 history (or set ENTITY_KEY env var)")
	scd2Flag := flag.Bool("scd2", false, "rebuild SCD2 history after curating (or set SCD2_ENABLED=true env var)")
	failFastFlag := flag.Bool("fail-fast", false, "abort on the first rejected file instead of skipping it (or set FAIL_FAST=true env var)")
	maxConcurrencyFlag := flag.Int("max-concurrency", defaultMaxConcurrency, "maximum number of files read concurrently")
	writeBatchSizeFlag := flag.Int("clickhouse-write-batch-size", defaultWriteBatchSize, "rows per ClickHouse insert when writing history")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [table...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Load .env file. godotenv does not override existing env vars, so
	// process env and explicit exports take precedence.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	cfg, err := settings.FromEnv(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// Flags take precedence over the environment when set explicitly.
	if flag.CommandLine.Changed("entity-key") {
		cfg.EntityKey = *entityKeyFlag
	}
	if flag.CommandLine.Changed("scd2") {
		cfg.SCD2Enabled = *scd2Flag
	}
	if flag.CommandLine.Changed("fail-fast") {
		cfg.FailFast = *failFastFlag
	}
	if flag.CommandLine.Changed("clickhouse-addr") {
		cfg.ClickHouse.Addr = *clickhouseAddrFlag
	}
	if cfg.ClickHouse.Database == "" || flag.CommandLine.Changed("clickhouse-database") {
		cfg.ClickHouse.Database = *clickhouseDatabaseFlag
	}
	if cfg.ClickHouse.Username == "" || flag.CommandLine.Changed("clickhouse-username") {
		cfg.ClickHouse.Username = *clickhouseUsernameFlag
	}
	if flag.CommandLine.Changed("clickhouse-password") {
		cfg.ClickHouse.Password = *clickhousePasswordFlag
	}
	if *clickhouseSecureFlag {
		cfg.ClickHouse.Secure = true
	}
	if args := flag.Args(); len(args) > 0 {
		cfg.Tables = args
	}

	log.Info("curator starting",
		"version", version,
		"commit", commit,
		"tables", cfg.Tables,
		"table_prefix", cfg.TablePrefix,
		"scd2_enabled", cfg.SCD2Enabled,
		"clickhouse_enabled", cfg.ClickHouse.Enabled(),
	)

	// Report errors to Sentry when configured.
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
			Release:     release,
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
		} else {
			log.Info("sentry initialized", "env", env, "release", release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		srv, err := startMetricsServer(log, *metricsAddrFlag)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
		Logger:      log,
		Region:      cfg.AWSRegion,
		EndpointURL: cfg.S3EndpointURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 store: %w", err)
	}
	defer store.Close()

	pcfg := pipeline.ConfigFromSettings(cfg)
	pcfg.Logger = log
	pcfg.Clock = clockwork.NewRealClock()
	pcfg.Store = store
	pcfg.Schemas = &schema.StoreSource{Store: store, Folder: cfg.MetadataFolder}
	pcfg.MaxConcurrency = *maxConcurrencyFlag

	if cfg.ClickHouse.Enabled() {
		client, err := openClickHouse(ctx, log, cfg.ClickHouse, *createDatabaseFlag, *migrationsEnableFlag)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close ClickHouse client", "error", err)
			}
		}()

		cat, err := catalog.New(catalog.Config{Logger: log, ClickHouse: client, Clock: pcfg.Clock})
		if err != nil {
			return fmt.Errorf("failed to create catalog: %w", err)
		}
		pcfg.Catalog = cat
		pcfg.ClickHouse = client
		if cfg.SCD2Enabled {
			w := catalog.NewHistoryWriter(log)
			w.WriteBatchSize = *writeBatchSizeFlag
			pcfg.HistoryWriter = w
		}
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	tables, err := p.Tables(ctx, cfg.Tables, cfg.TablePrefix)
	if err != nil {
		return fmt.Errorf("failed to resolve tables: %w", err)
	}

	results, err := p.RunAll(ctx, tables)
	for _, res := range results {
		for _, s := range res.Skipped {
			log.Warn("file left in landing", "table", res.Table, "url", s.URL, "error", s.Err)
		}
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			sentry.CaptureException(err)
		}
		return err
	}
	log.Info("curator finished", "tables", len(results))
	return nil
}

func openClickHouse(ctx context.Context, log *slog.Logger, cfg settings.ClickHouse, createDatabase, migrationsEnable bool) (clickhouse.Client, error) {
	// Create the ClickHouse database if requested (for dev use).
	if createDatabase {
		adminClient, err := clickhouse.NewClient(ctx, log, cfg.Addr, "default", cfg.Username, cfg.Password, cfg.Secure)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin ClickHouse client: %w", err)
		}
		adminConn, err := adminClient.Conn(ctx)
		if err != nil {
			adminClient.Close()
			return nil, fmt.Errorf("failed to get admin ClickHouse connection: %w", err)
		}
		if err := clickhouse.CreateDatabase(ctx, log, adminConn, cfg.Database); err != nil {
			adminClient.Close()
			return nil, fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
		}
		adminClient.Close()
	}

	if migrationsEnable {
		if err := clickhouse.RunMigrations(ctx, log, clickhouse.MigrationConfig{
			Addr:     cfg.Addr,
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
			Secure:   cfg.Secure,
		}); err != nil {
			return nil, fmt.Errorf("failed to run ClickHouse migrations: %w", err)
		}
		log.Info("ClickHouse migrations completed")
	}

	log.Debug("clickhouse client initializing", "addr", cfg.Addr, "database", cfg.Database, "username", cfg.Username, "secure", cfg.Secure)
	client, err := clickhouse.NewClient(ctx, log, cfg.Addr, cfg.Database, cfg.Username, cfg.Password, cfg.Secure)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	return client, nil
}

func startMetricsServer(log *slog.Logger, addr string) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv, nil
}
