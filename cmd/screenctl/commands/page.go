package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mohamedkhairy/signal-screener/internal/models"
	"github.com/mohamedkhairy/signal-screener/internal/screener"
	"github.com/spf13/cobra"
)

var (
	pageCmd = &cobra.Command{
		Use:   "page",
		Short: "Print one ranked screener page",
		Long: `Print one page of the screener, ranked the way the API ranks it.

Example:
  screenctl page --sort price --direction desc
  screenctl page --sort 1wk --asset-type crypto --page 2`,
		Args: cobra.NoArgs,
		RunE: runPage,
	}

	// Flags
	pageIndex     int
	pageSize      int
	pageAsset     string
	pageSearch    string
	pageSort      string
	pageDirection string
	pageSymbols   []string
)

func init() {
	rootCmd.AddCommand(pageCmd)

	pageCmd.Flags().IntVar(&pageIndex, "page", 0, "0-based page index")
	pageCmd.Flags().IntVar(&pageSize, "page-size", 20, "rows per page")
	pageCmd.Flags().StringVar(&pageAsset, "asset-type", "", "filter by asset type")
	pageCmd.Flags().StringVar(&pageSearch, "search", "", "case-insensitive symbol substring")
	pageCmd.Flags().StringVar(&pageSort, "sort", "symbol", "symbol, price or a timeframe (1d, 1wk, ...)")
	pageCmd.Flags().StringVar(&pageDirection, "direction", "", "asc or desc")
	pageCmd.Flags().StringSliceVar(&pageSymbols, "symbols", nil, "restrict to a watchlist")
}

func runPage(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	req := screener.PageRequest{
		Page:     pageIndex,
		PageSize: pageSize,
		Filter:   models.Filter{AssetType: pageAsset, Search: pageSearch},
		Sort:     models.SortSpec{Field: pageSort, Direction: models.SortDirection(pageDirection)},
	}

	var page *models.Page
	if len(pageSymbols) > 0 {
		page, err = svc.FetchWatchlistPage(cmd.Context(), pageSymbols, req)
	} else {
		page, err = svc.FetchPage(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), page)
	}
	return printPage(cmd.OutOrStdout(), page)
}

func printPage(w io.Writer, page *models.Page) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "page %d/%d  total %d  universe %d  sort %s %s\n",
		page.Page+1, max(screener.PageCount(page.Total, page.PageSize), 1),
		page.Total, page.UniqueSymbolCount, page.Sort.Field, page.Sort.Direction)

	header := []string{"SYMBOL", "PRICE", "CHANGE"}
	for _, tf := range models.Timeframes() {
		header = append(header, strings.ToUpper(string(tf)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, row := range page.Rows {
		cols := []string{row.Symbol, row.Price.StringFixed(2), formatChange(row.Change)}
		for _, tf := range models.Timeframes() {
			c := row.Counts[tf]
			cols = append(cols, fmt.Sprintf("%d/%d", c.Positive, c.TotalPossible))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}

func formatChange(c models.PriceChange) string {
	switch c.Status {
	case models.ChangeOK:
		return fmt.Sprintf("%+.2f%%", *c.Percent)
	case models.ChangeUndefined:
		return "n/a"
	default:
		return "-"
	}
}
