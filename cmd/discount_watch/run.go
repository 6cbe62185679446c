package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/discount-watch/internal/observability"
)

var runVerbose bool

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one aggregation over every configured source",
	Long: `Fetches all configured sources concurrently, applies the successful results to the
snapshot in one step, and prints the run report. Failed sources keep their previous data.`,
	RunE: runOnceCmd,
}

func init() {
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every source result after the report")
	rootCmd.AddCommand(runCommand)
}

func runOnceCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintReport(report)
	if runVerbose && runErr == nil {
		st := a.cache.View()
		for _, id := range report.Applied {
			res := st.Current[id]
			printer.PrintSource(&res)
		}
	}
	return runErr
}
