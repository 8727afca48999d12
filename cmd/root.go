package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/config"
	"github.com/lepinkainen/alexandria/internal/ingest"
	"github.com/lepinkainen/alexandria/internal/progress"
	"github.com/lepinkainen/alexandria/internal/storage"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
)

// CLI represents the complete command structure for the alexandria application
type CLI struct {
	// Global flags
	DBFile string `help:"Path to the catalog SQLite database file" default:"./alexandria.db"`
	Mirror string `help:"Base URL of the mirror API used for synchronization"`

	Import ImportCmd `cmd:"" help:"Import a bulk catalog dump file"`
	Sync   SyncCmd   `cmd:"" help:"Synchronize a record family against the mirror API"`
	Stats  StatsCmd  `cmd:"" help:"Show per-family record counts"`
}

// ImportCmd represents the bulk import command
type ImportCmd struct {
	File   string `short:"f" required:"" help:"Path to the dump file (.sql or .sql.gz)"`
	Family string `help:"Require the dump to contain this family (nonfiction, fiction, articles)"`
}

// SyncCmd represents the synchronization command
type SyncCmd struct {
	Family string `required:"" help:"Record family to synchronize (nonfiction, fiction, articles)"`
}

// StatsCmd represents the stats command
type StatsCmd struct{}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging()
	initConfig()

	// Create CLI instance
	var cli CLI

	// Parse command line with Kong
	ctx := kong.Parse(&cli,
		kong.Name("alexandria"),
		kong.Description("Maintain a local replica of a bibliographic catalog from bulk dumps and mirror deltas."),
		kong.UsageOnError(),
	)

	// Update global config based on parsed flags
	updateGlobalConfig(&cli)

	// Execute the selected command
	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetDefault("dbfile", "./alexandria.db")
	viper.SetDefault("mirror.baseurl", "")
	viper.SetDefault("sync.batchsize", 500)
	viper.SetDefault("import.checkpoint", 500)

	// Enable environment variable support
	viper.AutomaticEnv()
	if err := viper.BindEnv("mirror.baseurl", "ALEXANDRIA_MIRROR"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file...")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Error("Error writing config file", "error", err)
			}
			os.Exit(0)
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	// Initialize global config
	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	config.SetDBFile(cli.DBFile)
	if cli.Mirror != "" {
		config.SetMirrorBaseURL(cli.Mirror)
	}
}

// Run methods for each command

func (i *ImportCmd) Run() error {
	family := catalog.FamilyUnknown
	if i.Family != "" {
		f, err := catalog.ParseFamily(i.Family)
		if err != nil {
			return err
		}
		family = f
	}

	orch, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := orch.ImportFile(ctx, i.File, family)
	return reportOutcome("import", report)
}

func (s *SyncCmd) Run() error {
	family, err := catalog.ParseFamily(s.Family)
	if err != nil {
		return err
	}
	if config.MirrorBaseURL == "" {
		return fmt.Errorf("mirror base URL is required (provide via --mirror flag or mirror.baseurl in config)")
	}

	orch, cleanup, err := buildPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := orch.Synchronize(ctx, family)
	return reportOutcome("synchronization", report)
}

func (s *StatsCmd) Run() error {
	store := storage.NewSQLiteStore(config.DBFile)
	if err := store.Connect(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, family := range catalog.Families() {
		count, err := store.Count(ctx, family)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %d\n", family.String(), count)
	}
	return nil
}

func buildPipeline() (*ingest.Orchestrator, func(), error) {
	store := storage.NewSQLiteStore(config.DBFile)
	if err := store.Connect(); err != nil {
		return nil, nil, err
	}
	sink := progress.NewThrottled(progress.NewBar(), 500*time.Millisecond)
	opts := []ingest.Option{
		ingest.WithCheckpoint(config.ImportCheckpoint),
	}
	if config.MirrorBaseURL != "" {
		opts = append(opts, ingest.WithMirror(config.MirrorBaseURL, config.SyncBatchSize))
	}
	orch := ingest.New(store, sink, opts...)
	cleanup := func() { _ = store.Close() }
	return orch, cleanup, nil
}

func reportOutcome(operation string, report ingest.Report) error {
	switch report.Status {
	case ingest.StatusCompleted:
		slog.Info("Operation completed",
			"operation", operation,
			"added", report.Added,
			"updated", report.Updated)
		return nil
	case ingest.StatusCancelled:
		slog.Warn("Operation cancelled; committed progress is retained",
			"operation", operation,
			"added", report.Added,
			"updated", report.Updated)
		return nil
	case ingest.StatusLowDiskSpace:
		return fmt.Errorf("%s aborted: disk space on the storage volume is too low (progress so far is retained)", operation)
	case ingest.StatusDataNotFound:
		return fmt.Errorf("%s failed: the file does not contain recognizable catalog data", operation)
	case ingest.StatusCorrupted:
		return fmt.Errorf("%s failed, input looks corrupted: %w", operation, report.Err)
	default:
		return fmt.Errorf("%s failed: %w", operation, report.Err)
	}
}

func initLogging() {
	// Create a human-readable handler for logging
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: slog.LevelInfo,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}
