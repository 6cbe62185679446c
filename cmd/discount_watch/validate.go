package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/discount-watch/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Checks the configuration against the schema and the semantic rules, and builds every source adapter without fetching anything.`,
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if _, err := cfg.BuildSources(nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s is valid\n", configPath)
	fmt.Fprintf(out, "  sources:    %d\n", len(cfg.Sources))
	fmt.Fprintf(out, "  categories: %d\n", len(cfg.Categories))
	fmt.Fprintf(out, "  store:      %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "  schedule:   %s\n", cfg.Schedule.Cron)
	return nil
}
