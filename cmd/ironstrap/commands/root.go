package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironstrap/ironstrap/pkg/telemetry"
)

var (
	// Global flags
	verbose     bool
	jsonLogs    bool
	journalPath string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ironstrap",
		Short: "ironstrap - guided and unattended Arch Linux installer",
		Long: `ironstrap installs Arch Linux onto a local disk or a remote machine.

Features:
  - Interactive wizard or unattended installs from a saved profile
  - LUKS disk encryption and premounted layouts
  - Remote installs over SSH (rescue systems, VPS bootstrap)
  - Profile validation via schema and policy checks
  - Per-step install journal`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "log in JSON format")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "/var/lib/ironstrap/journal.db", "install journal database path")

	rootCmd.AddCommand(newInstallCommand(version))
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}

// newTelemetryLogger builds the structured logger shared by the install
// pipeline, honoring the global verbosity flags.
func newTelemetryLogger() (*telemetry.Logger, error) {
	cfg := telemetry.DefaultConfig().Logging
	if verbose {
		cfg.Level = "debug"
	}
	if jsonLogs {
		cfg.Format = "json"
	}
	return telemetry.NewLogger(cfg)
}
