package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/discount-watch/internal/observability"
	"github.com/jonathan/discount-watch/internal/presence"
)

var (
	showPrevious      bool
	showOnlyDiscounts bool
	showByState       bool
	showMaxDeals      int
)

var showCmd = &cobra.Command{
	Use:   "show <source-id>",
	Short: "Print a source from the persisted snapshot",
	Long:  `Prints the stored result of one source, its per-category presence states, and its current deals. Nothing is fetched.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showPrevious, "previous", false, "Show the previous result instead of the current one")
	showCmd.Flags().BoolVar(&showOnlyDiscounts, "only-discounts", false, "List only categories in the DISCOUNT state")
	showCmd.Flags().BoolVar(&showByState, "by-state", false, "Order categories by state instead of category ordinal")
	showCmd.Flags().IntVar(&showMaxDeals, "max-deals", 0, "Maximum deals to list (default: server.max_deals)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	id := args[0]

	a, err := openApp(cmd.Context(), configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	get := a.cache.Get
	if showPrevious {
		get = a.cache.GetPrevious
	}
	res, ok := get(id)
	if !ok {
		return fmt.Errorf("no data yet for source %s", id)
	}

	states := presence.Summarize(res.Items)
	if showOnlyDiscounts {
		states = presence.OnlyDiscounts(states)
	}
	if showByState {
		states = presence.ByState(states)
	}

	limit := a.cfg.Server.MaxDeals
	if showMaxDeals > 0 {
		limit = showMaxDeals
	}
	deals, truncated := presence.Deals(res.Items, limit)

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintSource(&res)
	printer.PrintPresence(id, states)
	printer.PrintDeals(id, deals, truncated)
	return nil
}
