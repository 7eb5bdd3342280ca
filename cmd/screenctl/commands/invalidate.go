package commands

import (
	"fmt"
	"time"

	"github.com/mohamedkhairy/signal-screener/internal/config"
	"github.com/mohamedkhairy/signal-screener/internal/pubsub"
	"github.com/spf13/cobra"
)

// invalidateCmd represents the invalidate command
var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached rankings on every API replica",
	Long: `Publish an update notice on the signal update channel. Every API replica
invalidates its ranking cache when it receives the notice.

Example:
  screenctl invalidate`,
	Args: cobra.NoArgs,
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	notice := pubsub.UpdateNotice{Source: "screenctl", At: time.Now().UTC()}
	if err := redisClient.Publish(cmd.Context(), cfg.Redis.UpdateChannel, notice); err != nil {
		return fmt.Errorf("failed to publish update notice: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published update notice on %s\n", cfg.Redis.UpdateChannel)
	return nil
}
