package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/driftlab/driftboard/internal/config"
	"github.com/driftlab/driftboard/internal/content"
	"github.com/driftlab/driftboard/internal/detect"
	"github.com/driftlab/driftboard/internal/enrich"
	"github.com/driftlab/driftboard/internal/ingest"
	"github.com/driftlab/driftboard/internal/llm"
	"github.com/driftlab/driftboard/internal/metrics"
	"github.com/driftlab/driftboard/internal/pipeline"
	"github.com/driftlab/driftboard/internal/providers"
	"github.com/driftlab/driftboard/internal/rescache"
	"github.com/driftlab/driftboard/internal/retry"
	"github.com/driftlab/driftboard/internal/server"
	"github.com/driftlab/driftboard/internal/store"
	"github.com/driftlab/driftboard/internal/theme"
	"github.com/driftlab/driftboard/internal/widgets"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "driftboard",
	Short:   "Personalized dashboards from your own activity",
	Long:    "driftboard detects behavioral patterns in your activity history and generates a themed dashboard of content cards and live widgets.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(verbose)

		// init and version work without a config file.
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if !verbose && cfg.Logging.Level == "debug" {
			logger = newLogger(true)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func openDB() (*store.DB, error) {
	dbPath := filepath.Join(cfg.Output.DataDir, "driftboard.db")
	if err := os.MkdirAll(cfg.Output.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(dbPath)
}

func retryPolicy(recorder metrics.Recorder) retry.Policy {
	p := retry.Policy{
		MaxAttempts:  cfg.Pipeline.RetryAttempts,
		InitialDelay: time.Duration(cfg.Pipeline.RetryDelayMS) * time.Millisecond,
		Factor:       2.0,
	}
	if recorder != nil {
		p.OnRetry = recorder.IncRetry
	}
	return p
}

func llmProvider() llm.Provider {
	return llm.CreateProvider(logger, llm.FactoryConfig{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		OllamaURL:       cfg.LLM.OllamaURL,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		OpenAIKeyEnv:    cfg.LLM.OpenAIKeyEnv,
		AnthropicModel:  cfg.LLM.AnthropicModel,
		AnthropicKeyEnv: cfg.LLM.AnthropicKeyEnv,
	})
}

// buildOrchestrator wires the stage runners from config.
func buildOrchestrator(db *store.DB, recorder metrics.Recorder) (*pipeline.Orchestrator, error) {
	provider := llmProvider()
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider configured; set up ollama or an API key in the config")
	}
	policy := retryPolicy(recorder)

	var search providers.SearchProvider
	if cfg.Providers.Search.Enabled {
		client := providers.NewBraveSearchClient(cfg.Providers.Search.APIKeyEnv)
		if client.IsConfigured() {
			search = client
		} else {
			logger.Warn("search enabled but API key missing; patterns will not be enriched")
		}
	}

	var cacheOpts []rescache.Option
	if ttl := cfg.Cache.TTL(); ttl > 0 {
		cacheOpts = append(cacheOpts, rescache.WithTTL(ttl))
	}
	if recorder != nil {
		cacheOpts = append(cacheOpts, rescache.WithRecorder(recorder))
	}
	cache, err := rescache.New(logger, cfg.Cache.Dir, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("opening result cache: %w", err)
	}

	wp := widgets.Providers{}
	if cfg.Providers.Weather.Enabled {
		wp.Weather = providers.NewOpenMeteoClient()
	}
	if cfg.Providers.Geocode.Enabled {
		wp.Geocode = providers.NewNominatimClient()
	}
	if cfg.Providers.Video.Enabled {
		if client := providers.NewYouTubeClient(cfg.Providers.Video.APIKeyEnv); client.IsConfigured() {
			wp.Video = client
		}
	}
	if cfg.Providers.Events.Enabled {
		if client := providers.NewTicketmasterClient(cfg.Providers.Events.APIKeyEnv); client.IsConfigured() {
			wp.Events = client
		}
	}

	stages := pipeline.Stages{
		Detector: detect.NewDetector(logger, provider, policy),
		Themer:   theme.NewThemer(logger, provider, policy),
		Enricher: enrich.NewEnricher(logger, provider, search, cache, policy,
			cfg.Pipeline.SearchBatchSize,
			time.Duration(cfg.Pipeline.SearchPauseMS)*time.Millisecond).
			WithExtractor(providers.NewPageExtractor()),
		Writer:  content.NewWriter(logger, provider, policy),
		Widgets: widgets.NewSelector(logger, provider, policy, wp, cfg.User.Location),
	}
	return pipeline.New(logger, db, stages, recorder, 30), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("driftboard", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/driftboard/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if err := config.WriteDefault(target); err != nil {
			fmt.Println(err)
			return nil
		}
		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure your feeds, location, API keys, and LLM provider.")
		return nil
	},
}

var ingestDaysBack int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull activity feeds into the interaction history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Sources.Feeds) == 0 {
			return fmt.Errorf("no activity feeds configured; add some under sources.feeds")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result := ingest.New(logger, cfg, db, ingestDaysBack).Run()

		fmt.Println("Ingestion complete:")
		fmt.Printf("  Entries found: %d\n", result.TotalFound)
		fmt.Printf("  New interactions: %d\n", result.NewInteractions)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		if len(result.Sources) > 0 {
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			fmt.Println("\nBy source:")
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the generation pipeline and store the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		orch, err := buildOrchestrator(db, nil)
		if err != nil {
			return err
		}

		events := make(chan pipeline.ProgressEvent, 32)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if ev.Stage == pipeline.StageFailed {
					fmt.Printf("[%3d%%] FAILED: %s\n", ev.Percent, ev.Message)
					continue
				}
				fmt.Printf("[%3d%%] %s\n", ev.Percent, ev.Message)
			}
		}()

		dash, err := orch.Run(cmd.Context(), cfg.User.ID, events)
		close(events)
		<-done
		if err != nil {
			return err
		}

		fmt.Printf("\nDashboard ready: %d patterns, %d cards, %d widgets (theme %q).\n",
			len(dash.Patterns), len(dash.Cards), len(dash.Widgets), dash.Theme.Name)
		fmt.Println("Run 'driftboard serve' to view it.")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard with live progress and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		registry := prometheus.NewRegistry()
		recorder := metrics.NewPrometheusRecorder(registry)

		orch, err := buildOrchestrator(db, recorder)
		if err != nil {
			// Serving an existing dashboard still works without a provider.
			logger.Warn("generation disabled", "reason", err)
			orch = nil
		}

		var gen server.Generator
		if orch != nil {
			gen = orch
		}
		return server.Serve(logger, db, gen, cfg.User.ID, registry, cfg.Server.Port)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := rescache.New(logger, cfg.Cache.Dir)
		if err != nil {
			return err
		}
		entries, bytes := cache.Stats()
		fmt.Printf("Cache: %s\n", cfg.Cache.Dir)
		fmt.Printf("  Entries: %d\n", entries)
		fmt.Printf("  Size: %.1f KiB\n", float64(bytes)/1024)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := rescache.New(logger, cfg.Cache.Dir)
		if err != nil {
			return err
		}
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show interaction history and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.CountInteractionsByCategory(cfg.User.ID, 30)
		if err != nil {
			return fmt.Errorf("counting interactions: %w", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Printf("User: %s\n\n", cfg.User.ID)
		fmt.Printf("Interactions (last 30 days): %d\n", total)
		var categories []string
		for cat := range counts {
			categories = append(categories, cat)
		}
		sort.Slice(categories, func(i, j int) bool { return counts[categories[i]] > counts[categories[j]] })
		for _, cat := range categories {
			fmt.Printf("  %s: %d\n", cat, counts[cat])
		}

		runs, err := db.GetRecentRuns(cfg.User.ID, 5)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		fmt.Println("\nRecent runs:")
		if len(runs) == 0 {
			fmt.Println("  none")
		}
		for _, r := range runs {
			line := fmt.Sprintf("  %.8s  %-8s %3d%%  %s", r.ID, r.Status, r.Percent, r.Stage)
			if r.Error != nil {
				line += "  (" + *r.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestDaysBack, "days-back", 30, "How far back to ingest feed entries")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
