package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/discount-watch/internal/schedule"
	"github.com/jonathan/discount-watch/internal/server"
)

var (
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and the REST API server",
	Long:  `Runs aggregations on the configured cron schedule and serves the snapshot over HTTP until interrupted.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "Serve only; runs happen through POST /runs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	if !serveNoSchedule {
		sched, err := schedule.New(a.cfg.Schedule.Cron, orch,
			schedule.WithLogger(a.logger),
			schedule.WithRunOnStart(a.cfg.Schedule.RunOnStart))
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
		a.logger.Info("scheduler started", "cron", a.cfg.Schedule.Cron, "next", sched.Next())
	}

	port := a.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	srvCfg := server.Config{
		Port:     port,
		MaxDeals: a.cfg.Server.MaxDeals,
		Logger:   a.logger,
	}
	if a.store != nil {
		srvCfg.History = a.store
	}

	srv, err := server.New(srvCfg, a.cache, orch)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
