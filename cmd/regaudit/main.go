// Package main provides the entry point for the register audit service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaura24/regaudit/internal/bus"
	"github.com/kaura24/regaudit/internal/config"
	"github.com/kaura24/regaudit/internal/llm"
	"github.com/kaura24/regaudit/internal/lock"
	"github.com/kaura24/regaudit/internal/observability"
	"github.com/kaura24/regaudit/internal/pipeline"
	"github.com/kaura24/regaudit/internal/raster"
	"github.com/kaura24/regaudit/internal/store"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "regaudit",
	Short: "Shareholder register audit pipeline",
	Long:  "regaudit extracts, normalizes, and validates shareholder registers into audited ownership reports, escalating unreliable documents to human review.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig assembles the effective configuration: file, then environment,
// then defaults for whatever is still unset. Flag overrides are applied by
// the individual commands.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	merged := cfg.MergeWithDefaults(config.Defaults())
	if verbose {
		merged.Verbose = true
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// components is the wired-up service core shared by every command.
type components struct {
	cfg    *config.Config
	log    *zap.Logger
	repo   *store.Repository
	bus    *bus.Bus
	client llm.Client
	orc    *pipeline.Orchestrator
}

// build wires storage, lock controller, collaborator client, event bus, and
// orchestrator from the effective configuration.
func build(ctx context.Context, rasterizer raster.Rasterizer) (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	logger, err := observability.NewLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.StorageBackend,
		DataDir:     cfg.DataDir,
		S3Bucket:    cfg.S3Bucket,
		S3Prefix:    cfg.S3Prefix,
		S3Region:    cfg.S3Region,
		S3Endpoint:  cfg.S3Endpoint,
		S3PathStyle: cfg.S3PathStyle,
		DatabaseURL: cfg.DatabaseURL,
		CacheSize:   cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}

	llmCfg := llm.DefaultConfig()
	if cfg.FastModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierFast, cfg.FastModel)
	}
	if cfg.PrimaryModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierPrimary, cfg.PrimaryModel)
	}
	if cfg.FallbackModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierFallback, cfg.FallbackModel)
	}
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create collaborator client: %w", err)
	}

	repo := store.NewRepository(st)
	eventBus := bus.New()
	locks := lock.NewController(st)
	if rasterizer == nil {
		rasterizer = raster.StoreRasterizer{Store: st}
	}

	return &components{
		cfg:    cfg,
		log:    logger,
		repo:   repo,
		bus:    eventBus,
		client: client,
		orc:    pipeline.New(repo, client, rasterizer, locks, eventBus, logger),
	}, nil
}

// close releases the collaborator client and flushes the logger.
func (c *components) close() {
	if c.client != nil {
		c.client.Close() //nolint:errcheck
	}
	if c.log != nil {
		c.log.Sync() //nolint:errcheck
	}
}
