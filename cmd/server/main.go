package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/star-labs/logscanner/internal/api"
	"github.com/star-labs/logscanner/internal/api/health"
	"github.com/star-labs/logscanner/internal/export"
	"github.com/star-labs/logscanner/internal/ingest"
	"github.com/star-labs/logscanner/internal/metrics"
	"github.com/star-labs/logscanner/internal/parser"
	"github.com/star-labs/logscanner/internal/query"
	"github.com/star-labs/logscanner/internal/storage"
	"github.com/star-labs/logscanner/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "logscanner-server",
	Short: "logscanner - Log file ingestion and query service",
	Long: `logscanner accepts log file uploads, parses them asynchronously,
stores the entries in ClickHouse, and serves search, aggregation,
and export queries over HTTP.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config
	var err error

	if configFile != "" {
		cfg, err = LoadConfig(configFile)
	} else {
		cfg, err = DefaultConfig()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	// Auto-create data directory for the job store
	dbDir := filepath.Dir(cfg.SQLite.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Job store
	jobs := storage.NewJobStore(cfg.SQLite.Path)
	if err := jobs.Open(); err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer jobs.Close()

	if err := jobs.Migrate(); err != nil {
		return fmt.Errorf("migrate job store: %w", err)
	}
	log.Printf("job store initialized at %s", cfg.SQLite.Path)

	// Log entry storage
	ch := storage.NewClickHouseStorage(&storage.ClickHouseConfig{
		Addresses:     cfg.ClickHouse.Addresses,
		Database:      cfg.ClickHouse.Database,
		Username:      cfg.ClickHouse.Username,
		Password:      cfg.ClickHouse.Password,
		DialTimeout:   cfg.ClickHouse.DialTimeout,
		MaxOpenConns:  cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:  cfg.ClickHouse.MaxIdleConns,
		Compression:   cfg.ClickHouse.Compression,
		RetentionDays: cfg.Processing.RetentionDays,
	})
	if err := ch.Open(); err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}
	defer ch.Close()

	if err := ch.Migrate(); err != nil {
		return fmt.Errorf("migrate clickhouse: %w", err)
	}
	log.Printf("clickhouse initialized at %v", cfg.ClickHouse.Addresses)

	// Ingestion pipeline
	registry := parser.DefaultRegistry()
	controller := ingest.NewController(jobs, ch, registry, ingest.Config{
		TempDir:       cfg.Processing.TempDir,
		BatchSize:     cfg.Processing.BatchSize,
		BufferSize:    cfg.Processing.BufferSize,
		MaxLineLength: cfg.Processing.MaxLineLength,
		Strict:        cfg.Processing.Strict,
		CoreWorkers:   cfg.Processing.ThreadPool.CoreSize,
		MaxWorkers:    cfg.Processing.ThreadPool.MaxSize,
		QueueCapacity: cfg.Processing.ThreadPool.QueueCapacity,
	})
	controller.SetRecorder(metrics.IngestRecorder{})
	defer controller.Close()

	// Query side
	executor := query.NewExecutor(ch.DB())
	exporter := export.NewExporter(executor)

	apiServer, err := api.New(&api.Config{
		Address:         cfg.Server.Address,
		MaxFileSize:     cfg.File.MaxSize,
		AllowedTypes:    cfg.File.AllowedTypes,
		HTTPTLSEnabled:  cfg.Server.TLS.Enabled,
		HTTPTLSCertFile: cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:  cfg.Server.TLS.KeyFile,
		Verbose:         cfg.Verbose,
	}, controller, executor, exporter, registry)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	apiServer.RegisterHealthChecker(health.NewSQLiteChecker(jobs.DB()))
	apiServer.RegisterHealthChecker(health.NewClickHouseChecker(ch))

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Expired job records are swept hourly.
	jobs.StartSweeper(ctx, time.Hour, cfg.SQLite.JobTTL)

	log.Printf("starting logscanner-server %s", config.Version)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Run(ctx)
	})
	g.Go(func() error {
		return runRetention(ctx, ch, cfg.Processing.RetentionDays)
	})
	if cfg.Metrics.Address != "" {
		metricsServer := metrics.NewServer(cfg.Metrics.Address)
		g.Go(func() error {
			return metricsServer.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}

// runRetention drops log entries older than the retention window once a
// day. ClickHouse also enforces the table TTL; this keeps lightweight
// merges from lagging behind on idle instances.
func runRetention(ctx context.Context, ch *storage.ClickHouseStorage, retentionDays int) error {
	if retentionDays <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			n, err := ch.DeleteBefore(ctx, cutoff)
			if err != nil {
				log.Printf("retention sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("retention sweep removed %d entries older than %s", n, cutoff.Format(time.DateOnly))
			}
		}
	}
}
