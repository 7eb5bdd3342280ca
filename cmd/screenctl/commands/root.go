package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/ranking"
	"github.com/mohamedkhairy/signal-screener/internal/screener"
	"github.com/mohamedkhairy/signal-screener/internal/storage"
	"github.com/mohamedkhairy/signal-screener/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel   string
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screenctl",
	Short: "Operator CLI for the MACD signal screener",
	Long: `screenctl queries the signal store the same way the screener API does.

Connection settings come from the environment (or .env), the same variables
the API service reads.

Examples:
  screenctl page --sort 1d --page-size 25
  screenctl triggers AAPL 1wk
  screenctl instrument MSFT --json
  screenctl invalidate`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(logLevel, "development")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")
}

// openService connects to the store and builds an uncached screener
func openService() (*screener.Service, storage.SignalStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	store, err := storage.NewTimescaleSignalStore(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc := screener.NewService(store, ranking.NoCache{CountSource: store}, screener.ConfigFromScreenerConfig(cfg.Screener))
	return svc, store, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
