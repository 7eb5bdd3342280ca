package commands

import (
	"fmt"

	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/spf13/cobra"
)

// instrumentCmd represents the instrument command
var instrumentCmd = &cobra.Command{
	Use:   "instrument <symbol>",
	Short: "Print the detail view of one symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstrument,
}

func init() {
	rootCmd.AddCommand(instrumentCmd)
}

func runInstrument(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	agg, err := svc.GetInstrument(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), agg)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)  %s  %s\n", agg.Symbol, agg.AssetType, agg.Price.StringFixed(2), formatChange(agg.Change))
	for _, tf := range models.Timeframes() {
		c := agg.Counts[tf]
		last := "-"
		if events := agg.Triggers[tf]; len(events) > 0 {
			for i := len(events) - 1; i >= 0; i-- {
				if len(events[i].Triggered) > 0 {
					last = events[i].Date
					break
				}
			}
		}
		fmt.Fprintf(out, "  %-4s %d/%d  last trigger %s\n", tf, c.Positive, c.TotalPossible, last)
	}
	return nil
}
