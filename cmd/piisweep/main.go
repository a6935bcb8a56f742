package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pii-sweep/piisweep/internal/config"
	"github.com/pii-sweep/piisweep/internal/detect"
	"github.com/pii-sweep/piisweep/internal/extract"
	"github.com/pii-sweep/piisweep/internal/logger"
	"github.com/pii-sweep/piisweep/internal/report"
	"github.com/pii-sweep/piisweep/internal/scan"
	"github.com/pii-sweep/piisweep/internal/store"
	"github.com/pii-sweep/piisweep/internal/update"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		index        = flag.String("index", "", "Index to sweep (overrides config)")
		out          = flag.String("out", "", "Report output path (overrides config)")
		detectorsF   = flag.String("detectors", "", "Detectors YAML file (overrides config)")
		queryFile    = flag.String("query", "", "Custom query JSON file (overrides config)")
		applyUpdates = flag.Bool("apply-updates", false, "Write findings back to the documents")
		dedupe       = flag.Bool("dedupe", false, "Deduplicate (detector,value,path) rows across the run")
		dryRun       = flag.Bool("dry-run", false, "Force updates off regardless of config")
		watch        = flag.Bool("watch", false, "Stay resident and re-run the sweep on config changes")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("piisweep %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *index, *out, *detectorsF, *queryFile, *applyUpdates, *dedupe, *dryRun)

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting piisweep",
		zap.String("version", version),
		zap.String("index", cfg.Store.Index),
		zap.Bool("apply_updates", cfg.Update.Apply),
	)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Shutdown signal received, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	summary, err := runSweep(ctx, cfg, log)
	if err != nil {
		log.Fatal("Sweep failed", zap.Error(err))
	}
	printSummary(summary)

	if *watch {
		watchAndRerun(ctx, cfg, log, *index, *out, *detectorsF, *queryFile, *applyUpdates, *dedupe, *dryRun)
	}
}

// applyFlags overlays command-line overrides onto the loaded config. Boolean
// flags only override when explicitly set on the command line.
func applyFlags(cfg *config.Config, index, out, detectors, queryFile string, applyUpdates, dedupe, dryRun bool) {
	if index != "" {
		cfg.Store.Index = index
	}
	if out != "" {
		cfg.Report.Output = out
	}
	if detectors != "" {
		cfg.Detectors.File = detectors
	}
	if queryFile != "" {
		cfg.Store.QueryFile = queryFile
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["apply-updates"] {
		cfg.Update.Apply = applyUpdates
	}
	if set["dedupe"] {
		cfg.Report.Dedupe = dedupe
	}
	if dryRun {
		cfg.Update.Apply = false
	}
}

// runSweep wires the components for one sweep and executes it.
func runSweep(ctx context.Context, cfg *config.Config, log *logger.Logger) (*scan.Summary, error) {
	client, err := store.New(cfg.Store.Config, log.WithComponent("store").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store unreachable: %w", err)
	}

	detectors := detect.Registry(cfg.Detectors.File, log.WithComponent("detect").Logger)
	pipeline := extract.New(detectors, cfg.Extract, log.WithComponent("extract").Logger)

	writer, err := report.New(cfg.Report.Output, report.Format(cfg.Report.Format))
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}

	if cfg.Report.Dedupe {
		keys, err := dedupeKeys(cfg, log)
		if err != nil {
			writer.Close()
			return nil, err
		}
		writer = report.Deduped(writer, keys)
	}

	var batcher *update.Batcher
	if cfg.Update.Apply {
		batcher = update.NewBatcher(client, cfg.Store.Index, update.Config{
			BulkSize:    cfg.Update.BulkSize,
			FieldMap:    cfg.Detectors.FieldMap,
			FieldPrefix: cfg.Detectors.FieldPrefix,
		}, log.WithComponent("update").Logger)
	}

	query, err := scan.BuildQuery(cfg.Store.QueryFile, cfg.Extract.ContentField, cfg.Extract.PathField)
	if err != nil {
		writer.Close()
		return nil, err
	}

	scanner := scan.New(client, pipeline, writer, batcher, scan.Config{
		Index:     cfg.Store.Index,
		PageSize:  cfg.Store.PageSize,
		ScrollTTL: cfg.Store.ScrollTTL,
		Query:     query,
		OutPath:   cfg.Report.Output,
	}, log.WithComponent("scan").Logger)

	return scanner.Run(ctx)
}

func dedupeKeys(cfg *config.Config, log *logger.Logger) (report.KeySet, error) {
	if cfg.Report.DedupeBackend == "redis" {
		keys, err := report.NewRedisSet(report.RedisConfig{
			URL:       cfg.Report.RedisURL,
			KeyPrefix: cfg.Report.RedisPrefix,
			TTL:       cfg.Report.RedisTTL,
		}, log.WithComponent("report").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis dedupe: %w", err)
		}
		return keys, nil
	}
	return report.NewMemorySet(), nil
}

// watchAndRerun re-runs the sweep whenever the config file changes, until
// the context is cancelled. Failures of watched runs are logged, not fatal.
func watchAndRerun(ctx context.Context, cfg *config.Config, log *logger.Logger, index, out, detectors, queryFile string, applyUpdates, dedupe, dryRun bool) {
	reload := make(chan *config.Config, 1)
	err := config.Watch(func(newCfg *config.Config) {
		select {
		case reload <- newCfg:
		default:
		}
	})
	if err != nil {
		log.Warn("Config watch unavailable", zap.Error(err))
		return
	}

	log.Info("Watching configuration for changes")

	for {
		select {
		case <-ctx.Done():
			return
		case newCfg := <-reload:
			applyFlags(newCfg, index, out, detectors, queryFile, applyUpdates, dedupe, dryRun)
			log.Info("Configuration changed, re-running sweep")
			summary, err := runSweep(ctx, newCfg, log)
			if err != nil {
				log.Error("Watched sweep failed", zap.Error(err))
				continue
			}
			printSummary(summary)
		}
	}
}

func printSummary(s *scan.Summary) {
	fmt.Printf("Docs scanned: %d | Values extracted: %d | Updates sent: %d\n",
		s.DocsScanned, s.ValuesExtracted, s.UpdatesSent)
	fmt.Printf("Report written to: %s\n", s.OutPath)
}
