package cli

import (
	"os/signal"
	"syscall"

	"github.com/outflow-crm/outflow/internal/actions"
	"github.com/outflow-crm/outflow/internal/conditions"
	"github.com/outflow-crm/outflow/internal/db"
	"github.com/outflow-crm/outflow/internal/engine"
	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/outflow-crm/outflow/internal/outflowd"
	"github.com/outflow-crm/outflow/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveHealthAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHealthAddr, "health-addr", "", "health endpoint bind address (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Outflow scheduler daemon",
	Long:  "Run the long-lived scheduler process that polls for due runs and advances them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		runs := db.NewRunRepository(database)
		activities := db.NewActivityRepository(database)
		flags := db.NewLeadFlagRepository(database)
		eventRepo := db.NewEventRepository(database)

		window := conditions.WindowFromConfig(cfg.BusinessHours)
		eng := engine.New(runs, activities, flags, eventRepo, actions.NewLogExecutor(), window, engine.Config{
			MaxAttempts:    cfg.Scheduler.MaxAttempts,
			PendingTimeout: cfg.Scheduler.PendingTimeout,
		})

		sched := scheduler.New(scheduler.Config{
			TickInterval:      cfg.Scheduler.TickInterval,
			DispatchTimeout:   cfg.Scheduler.DispatchTimeout,
			MaxConcurrentRuns: cfg.Scheduler.MaxConcurrentRuns,
			BatchSize:         cfg.Scheduler.BatchSize,
		}, runs, eng)

		daemon, err := outflowd.New(cfg, logging.Component("outflowd"), sched, outflowd.Options{
			HealthAddr: serveHealthAddr,
			Version:    Version,
		})
		if err != nil {
			return err
		}

		return daemon.Run(ctx)
	},
}
