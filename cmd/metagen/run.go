package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thisnaeem/metagen/internal/config"
	"github.com/thisnaeem/metagen/internal/gemini"
	"github.com/thisnaeem/metagen/internal/keypool"
	"github.com/thisnaeem/metagen/internal/observability"
	"github.com/thisnaeem/metagen/internal/scheduler"
	"github.com/thisnaeem/metagen/internal/store"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate metadata for every media file in a directory",
	Long: `Scans the input directory for media files, builds one job per file, and
distributes the jobs across the configured API keys without exceeding any
single key's per-minute limit. Keys that fail validation or are rejected by
the provider are excluded; their jobs fail over to the remaining keys.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runGenerate,
}

var (
	runConfigPath  string
	runInput       string
	runAPIKeys     []string
	runDatabaseURL string
	runMaxRetries  int
	runCapacity    int
	runModel       string
	runKeywords    int
	runTitleLen    int
	runDescLen     int
	runVerbose     bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runInput, "input", "i", "", "Directory of media files to process")
	runCommand.Flags().StringArrayVar(&runAPIKeys, "api-key", nil, "Gemini API key (repeatable; used when no database is configured)")
	runCommand.Flags().IntVar(&runMaxRetries, "max-retries", 0, "Retries per job after transient failures")
	runCommand.Flags().IntVar(&runCapacity, "capacity", 0, "Per-key requests per minute")
	runCommand.Flags().StringVar(&runModel, "model", "", "Gemini model name")
	runCommand.Flags().IntVar(&runKeywords, "keywords", 0, "Number of keywords to generate per file")
	runCommand.Flags().IntVar(&runTitleLen, "title-length", 0, "Maximum title length in characters")
	runCommand.Flags().IntVar(&runDescLen, "description-length", 0, "Maximum description length in characters")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	// Database URL for key persistence
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Input == "" {
		return fmt.Errorf("--input directory is required")
	}

	files, err := collectMediaFiles(cfg.Input)
	if err != nil {
		return fmt.Errorf("failed to scan input directory: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no media files found in %s", cfg.Input)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	pool, err := buildPool(ctx, cfg, db)
	if err != nil {
		return err
	}
	if pool.Len() == 0 {
		return fmt.Errorf("no API keys configured; add keys via --api-key, the config file, or 'metagen keys add'")
	}

	client := gemini.NewClient(gemini.Settings{
		Model:             cfg.Model,
		TitleLength:       cfg.TitleLength,
		KeywordCount:      cfg.KeywordCount,
		DescriptionLength: cfg.DescriptionLength,
	})

	sched := scheduler.New(pool, client, client, scheduler.Options{
		MaxRetries: cfg.MaxRetries,
	})

	jobs := make([]*scheduler.Job, 0, len(files))
	for _, file := range files {
		jobs = append(jobs, scheduler.NewJob(file, nil))
	}

	fmt.Printf("Processing %d files across %d keys...\n", len(jobs), pool.Len())
	handle := sched.Start(ctx, jobs)

	// First interrupt stops assignment gracefully; in-flight calls finish
	// and their results are kept.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Println("\nStopping... letting in-flight work finish (Ctrl-C again to abandon)")
			handle.Stop()
		}
	}()

	printer := observability.NewPrinter(os.Stdout)
	for progress := range handle.Progress() {
		printer.PrintProgress(progress)
	}

	report, err := handle.Wait()
	if err != nil {
		return err
	}

	printer.PrintReport(report)
	printResults(report)

	if len(report.Succeeded) == 0 && len(report.Failed) > 0 {
		return fmt.Errorf("all %d jobs failed", len(report.Failed))
	}
	return nil
}

// resolveConfig loads the optional config file and applies CLI overrides.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if runConfigPath != "" {
		loaded, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
		if runVerbose {
			fmt.Printf("Loaded config from: %s\n", runConfigPath)
		}
	}

	// Command-line args take priority; only override if explicitly set.
	if cmd.Flags().Changed("input") {
		cfg.Input = runInput
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.MaxRetries = runMaxRetries
	}
	if cmd.Flags().Changed("capacity") {
		cfg.CapacityPerMinute = runCapacity
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = runModel
	}
	if cmd.Flags().Changed("keywords") {
		cfg.KeywordCount = runKeywords
	}
	if cmd.Flags().Changed("title-length") {
		cfg.TitleLength = runTitleLen
	}
	if cmd.Flags().Changed("description-length") {
		cfg.DescriptionLength = runDescLen
	}
	if runVerbose {
		cfg.Verbose = true
	}
	for _, secret := range runAPIKeys {
		cfg.APIKeys = append(cfg.APIKeys, config.KeyEntry{Secret: secret})
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	cfg = cfg.MergeWithDefaults(config.DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openStore connects to the key database when one is configured.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to key database: %w", err)
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildPool assembles the key pool from the database (if configured) plus any
// keys given inline, wiring persistence hooks so state and usage survive the
// run.
func buildPool(ctx context.Context, cfg config.Config, db *store.Store) (*keypool.Pool, error) {
	hooks := keypool.Hooks{}
	if db != nil {
		hooks.OnStateChanged = func(snap keypool.Snapshot) {
			if err := db.SaveCredential(context.Background(), snap); err != nil {
				fmt.Printf("Warning: failed to persist key state: %v\n", err)
			}
		}
		hooks.OnRemoved = func(id uuid.UUID) {
			if err := db.DeleteCredential(context.Background(), id); err != nil {
				fmt.Printf("Warning: failed to delete key: %v\n", err)
			}
		}
	}

	pool := keypool.NewPool(cfg.CapacityPerMinute, hooks)

	known := map[string]bool{}
	if db != nil {
		creds, err := db.ListCredentials(ctx)
		if err != nil {
			return nil, err
		}
		for _, snap := range creds {
			if err := pool.Restore(snap); err != nil {
				return nil, err
			}
			known[snap.Secret] = true
		}
	}

	for _, entry := range cfg.APIKeys {
		if known[entry.Secret] {
			continue
		}
		pool.Add(entry.Secret, entry.Name)
		known[entry.Secret] = true
	}

	return pool, nil
}

// collectMediaFiles returns the supported media files directly inside dir,
// sorted by name.
func collectMediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// printResults writes the generated metadata for each succeeded job.
func printResults(report *scheduler.Report) {
	for _, outcome := range report.Succeeded {
		meta, ok := outcome.Result.(*gemini.Metadata)
		if !ok {
			continue
		}
		fmt.Printf("\n%s\n  Title:       %s\n  Keywords:    %s\n  Description: %s\n",
			filepath.Base(outcome.File), meta.Title, strings.Join(meta.Keywords, ", "), meta.Description)
	}
}
