package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"libraryms/internal/config"
	"libraryms/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	// Global flags
	envFile string

	cfg *config.Config
	log *logrus.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "libraryms",
	Short: "Library management service",
	Long: `libraryms runs the library API and its maintenance jobs.

Commands:
  serve    - Run the HTTP API and the sweep scheduler
  migrate  - Apply pending database migrations
  sweep    - Run maintenance sweeps once
  report   - Generate and list CSV reports`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(envFile); err != nil {
			return err
		}
		log, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		return err
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file; skipped when missing")
}
