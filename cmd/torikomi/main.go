// Package main is the torikomi CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/config"
	"github.com/hyperjump/torikomi/internal/detect"
	"github.com/hyperjump/torikomi/internal/enrich"
	"github.com/hyperjump/torikomi/internal/extract"
	"github.com/hyperjump/torikomi/internal/models"
	"github.com/hyperjump/torikomi/internal/pipeline"
	"github.com/hyperjump/torikomi/internal/runner"
	"github.com/hyperjump/torikomi/internal/server"
	"github.com/hyperjump/torikomi/internal/source"
	"github.com/hyperjump/torikomi/internal/state"
	"github.com/hyperjump/torikomi/internal/watcher"
	"github.com/hyperjump/torikomi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/torikomi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "torikomi run" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "run":
		runOnce()
	case "watch":
		runWatch()
	case "serve":
		runServe()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("torikomi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds everything a run needs, wired from config.
type Components struct {
	Pipeline *pipeline.Pipeline
	States   *state.Store
	Cache    *enrich.Cache
}

// Close releases held resources.
func (c *Components) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := source.NewDirStore(cfg.Source.Root, cfg.Source.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to open source root: %w", err)
	}

	detectOpts := []detect.DetectorOption{}
	if debug {
		detectOpts = append(detectOpts, detect.WithLogger(logger))
	}
	detector := detect.NewDetector(
		store,
		detect.NewListingCache(cfg.Paths.ListingCachePath),
		cfg.Pipeline.CacheTTL(),
		detectOpts...,
	)

	states := state.NewStore(cfg.Paths.StatePath, state.WithLogger(logger))

	strategies := []extract.Strategy{
		extract.NewSidecarStrategy(store, cfg.Extraction.SidecarThreshold),
		extract.NewDirectStrategy(cfg.Extraction.DirectThreshold),
	}
	if cfg.OCR.Enabled {
		ocrOpts := []extract.OCROption{}
		if debug {
			ocrOpts = append(ocrOpts, extract.WithOCRLogger(logger))
		}
		strategies = append(strategies, extract.NewOCRStrategy(
			cfg.OCR.Rasterizer,
			cfg.OCR.Engine,
			cfg.OCR.DPI,
			cfg.OCR.Timeout(),
			cfg.Extraction.OCRThreshold,
			ocrOpts...,
		))
	}
	chainOpts := []extract.ChainOption{}
	if debug {
		chainOpts = append(chainOpts, extract.WithLogger(logger))
	}
	chain := extract.NewChain(strategies, chainOpts...)

	var enricher runner.Enricher
	var cache *enrich.Cache
	if cfg.Enrichment.SummarizeOrDefault() || cfg.Enrichment.EntitiesOrDefault() {
		client, err := enrich.NewLLMClient(
			cfg.Enrichment.Host,
			cfg.Enrichment.Model,
			cfg.Enrichment.DefaultCostUnits,
			enrich.WithClientLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		cache, err = enrich.NewCache(cfg.Paths.EnrichmentCache)
		if err != nil {
			return nil, err
		}
		policy := enrich.NewPolicy(cfg.Enrichment.RetryMaxAttempts, cfg.Enrichment.RetryBaseDelay())
		enricher = enrich.NewEnricher(client, cache, policy, enrich.Options{
			Summarize:     cfg.Enrichment.SummarizeOrDefault(),
			Entities:      cfg.Enrichment.EntitiesOrDefault(),
			MaxChunkChars: cfg.Enrichment.MaxChunkChars,
			ChunkOverlap:  cfg.Enrichment.ChunkOverlap,
			CallTimeout:   cfg.Enrichment.Timeout(),
			Logger:        logger,
		})
	}

	r := runner.NewRunner(store, chain, enricher, cfg.Pipeline.Workers,
		runner.WithLogger(logger),
		runner.WithProgressEvery(cfg.Pipeline.ProgressEvery),
	)

	p := pipeline.New(detector, r, states,
		pipeline.WithLogger(logger),
		pipeline.WithRunTimeout(cfg.Pipeline.RunTimeout()),
	)

	return &Components{Pipeline: p, States: states, Cache: cache}, nil
}

func setup(args []string) (*config.Config, *zap.Logger, *Components) {
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args[1:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runOnce() {
	_, logger, components := setup(os.Args[1:])
	defer logger.Sync()
	defer components.Close()

	summary, records, err := components.Pipeline.RunOnce(context.Background())
	if err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
	printSummary(summary, records)
}

func printSummary(summary *models.RunSummary, records []models.JobRecord) {
	fmt.Printf("Run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  succeeded:        %d\n", summary.Succeeded)
	fmt.Printf("  partially failed: %d\n", summary.PartiallyFailed)
	fmt.Printf("  failed:           %d\n", summary.Failed)
	fmt.Printf("  deleted:          %d\n", summary.Deleted)
	fmt.Printf("  cost units:       %.1f\n", summary.CostUnits)
	if summary.StateRecovered {
		fmt.Println("  note: state was recovered from backup")
	}
	if summary.StateReset {
		fmt.Println("  note: state was unreadable and has been reset")
	}
	for _, rec := range records {
		if rec.Status == models.StatusFailed && !rec.Tombstone {
			fmt.Printf("  FAILED %s: %s\n", rec.Document.Path, rec.LastError)
		}
	}
}

func runWatch() {
	cfg, logger, components := setup(os.Args[1:])
	defer logger.Sync()
	defer components.Close()

	runs := make(chan struct{}, 1)
	w := watcher.NewWatcher(cfg.Source.Root, cfg.Source.Extensions, func() {
		select {
		case runs <- struct{}{}:
		default: // a run is already queued
		}
	}, watcher.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()

	// Process whatever changed while we were not watching.
	runs <- struct{}{}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("watching for changes", zap.String("root", cfg.Source.Root))
	for {
		select {
		case <-runs:
			summary, records, err := components.Pipeline.RunOnce(ctx)
			if err != nil {
				logger.Error("run failed", zap.Error(err))
				continue
			}
			if summary.Processed() > 0 || summary.Deleted > 0 {
				printSummary(summary, records)
			}
		case <-sigChan:
			logger.Info("Shutting down...")
			return
		}
	}
}

func runServe() {
	cfg, logger, components := setup(os.Args[1:])
	defer logger.Sync()
	defer components.Close()

	srv := server.NewServer(components.Pipeline, components.States, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputJSON := fs.Bool("json", false, "print status as JSON")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	states := state.NewStore(cfg.Paths.StatePath)
	loaded, err := states.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load state: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		out := map[string]interface{}{
			"documents":   len(loaded.State.Documents),
			"first_run":   loaded.FirstRun,
			"last_run_at": loaded.State.LastRunAt,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	if loaded.FirstRun {
		fmt.Println("No runs yet.")
		return
	}
	fmt.Printf("Documents tracked: %d\n", len(loaded.State.Documents))
	fmt.Printf("Last run:          %s\n", loaded.State.LastRunAt.Format(time.RFC3339))
}

func printUsage() {
	fmt.Println(`torikomi - incremental content ingestion and enrichment

Usage:
  torikomi <command> [flags]

Commands:
  run      Detect changes and process them once
  watch    Watch the source root and run on changes
  serve    Expose the pipeline over HTTP
  status   Show persisted state
  version  Print version

Flags:
  -config  Config file path (default ` + defaultConfigPath + `)
  -debug   Enable debug logging`)
}
