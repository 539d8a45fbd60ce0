// Package cli provides the Outflow command-line interface.
package cli

import (
	"fmt"

	"github.com/outflow-crm/outflow/internal/config"
	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/spf13/cobra"
)

// Version is the build version, overridden at link time.
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "outflow",
	Short:         "Multi-step outreach sequence engine",
	Long:          "Outflow enrolls leads into declarative outreach sequences and advances them through timed steps.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, cfg.LogConsole)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: outflow.yaml in cwd or user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Outflow version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "outflow", Version)
	},
}

// openDatabase opens the configured database and applies migrations.
func openDatabase(cmd *cobra.Command) (*db.DB, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(cmd.Context()); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
