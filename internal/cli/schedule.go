package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"partialdump/internal/config"
	"partialdump/internal/service"
)

var (
	scheduleCron   string
	scheduleWatch  bool
	scheduleRunNow bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the dump periodically or whenever the config file changes",
	Long: `Run the dump on a cron schedule and/or whenever the config file is saved.
The config file is reloaded before each run; a run is skipped while the
previous one is still in progress.`,
	Example: `  # Nightly dump with a dated output file
  partialdump schedule --cron '0 3 * * *' -o 'dumps/{{.Date}}.sql'

  # Re-dump on every config edit
  partialdump schedule --watch --run-now -o dump.sql`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return ConfigError("schedule needs a config file (use --config or add partialdump.yaml)", nil)
		}
		if err := cfg.Validate(); err != nil {
			return validationError(err)
		}
		expr := resolveString(scheduleCron, cfg.Schedule)
		if expr == "" && !scheduleWatch {
			return ConfigError("nothing to schedule: set --cron, schedule in the config, or --watch", nil)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, closeStore, err := serviceOptions(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		flags := cmd.Flags()
		load := func(path string) (*config.Config, error) {
			c, _, err := loadEffectiveConfig(path, flags)
			if err != nil {
				return nil, err
			}
			if err := c.Validate(); err != nil {
				return nil, err
			}
			return c, nil
		}

		sched := service.NewScheduler(configPath, load, logger, opts...)
		if err := sched.Start(ctx, expr, scheduleWatch); err != nil {
			return ConfigError("starting scheduler", err)
		}
		if scheduleRunNow {
			go func() {
				if _, err := sched.RunOnce(ctx); err != nil {
					logger.Error("initial run failed", "error", err)
				}
			}()
		}

		<-ctx.Done()
		logger.Info("shutting down")
		sched.Stop()
		waitCtx, cancel := withTimeout(30 * time.Second)
		defer cancel()
		sched.WaitRunning(waitCtx)
		return nil
	},
}

func init() {
	addDumpFlags(scheduleCmd)
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleCron, "cron", "", "cron expression (default: schedule from the config)")
	f.BoolVar(&scheduleWatch, "watch", false, "run whenever the config file changes")
	f.BoolVar(&scheduleRunNow, "run-now", false, "run once immediately")
}
