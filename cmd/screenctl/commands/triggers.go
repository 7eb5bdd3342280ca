package commands

import (
	"fmt"
	"strings"

	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/spf13/cobra"
)

var (
	triggersCmd = &cobra.Command{
		Use:   "triggers <symbol> <timeframe>",
		Short: "Print the trigger history of one symbol and timeframe",
		Long: `Expand the raw signal flags of one symbol and timeframe into trigger
events, oldest first. Bars without a newly triggered signal are hidden unless
--all is set.

Example:
  screenctl triggers AAPL 1d
  screenctl triggers BTC-USD 1wk --all`,
		Args: cobra.ExactArgs(2),
		RunE: runTriggers,
	}

	// Flags
	triggersAll bool
)

func init() {
	rootCmd.AddCommand(triggersCmd)

	triggersCmd.Flags().BoolVar(&triggersAll, "all", false, "include bars with no triggers")
}

func runTriggers(cmd *cobra.Command, args []string) error {
	timeframe, err := models.ParseTimeframe(args[1])
	if err != nil {
		return err
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := svc.ExpandTriggerHistory(cmd.Context(), args[0], timeframe)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), events)
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, ev := range events {
		if len(ev.Triggered) == 0 && !triggersAll {
			continue
		}
		keys := make([]string, len(ev.Triggered))
		for i, k := range ev.Triggered {
			keys[i] = string(k)
		}
		fmt.Fprintf(out, "%s  %s\n", ev.Date, strings.Join(keys, ", "))
		shown++
	}
	fmt.Fprintf(out, "%d of %d bars\n", shown, len(events))
	return nil
}
