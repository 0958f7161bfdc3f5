package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cogito/internal/config"
	"cogito/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonLogs   bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cogito",
	Short: "cogito - reasoning orchestration kernel",
	Long: `cogito drives multi-pass task execution around an LLM oracle.

It profiles the task, generates a declarative plan, executes and validates
steps under an adaptive budget, gates on convergence, and always ends with a
synthesized answer, even when the run degrades.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return logging.Initialize(logging.Options{
			Debug:      verbose || cfg.Logging.Level == "debug",
			JSONFormat: jsonLogs || cfg.Logging.Format == "json",
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".cogito/config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
