// Package cli implements the drivetidy command-line interface.
// Operational rules:
// - Reports are always shown before anything changes
// - All destructive actions require confirmation
// - No state is carried between runs except the history ledger
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivetidy/drivetidy/internal/config"
	"github.com/drivetidy/drivetidy/internal/logger"
)

var (
	// Global flags
	verbose      bool
	quiet        bool
	configFile   string
	providerName string
	logLevel     string
	dryRun       bool

	settings *config.Config
)

// rootCmd is the base command for drivetidy.
var rootCmd = &cobra.Command{
	Use:   "drivetidy",
	Short: "Find and trash duplicate files in cloud storage",
	Long: `drivetidy lists every file in a cloud drive, groups files with identical
content and moves the extra copies to the trash after you confirm.

It also fixes photo modification dates from EXIF capture times.

Backends:
  • gdrive  Google Drive API (run "drivetidy auth" first)
  • rclone  any rclone remote`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	defer logger.Close()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.drivetidy/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "Backend to use: gdrive or rclone")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without doing it")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(datefixCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(authCmd)
}

func setup() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if providerName != "" {
		cfg.Provider = providerName
	}

	switch {
	case logLevel != "":
		cfg.Logging.Level = logLevel
	case verbose:
		cfg.Logging.Level = "debug"
	case quiet:
		cfg.Logging.Level = "warn"
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	settings = cfg
	return nil
}

func newCommandApp(cmd *cobra.Command) *App {
	app := NewApp(settings, cmd.InOrStdin(), cmd.OutOrStdout())
	app.DryRun = dryRun
	app.Verbose = verbose
	return app
}
