package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ldiehl/paperboy/internal/config"
	"github.com/ldiehl/paperboy/internal/logging"
	"github.com/ldiehl/paperboy/internal/paper"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run digests on the configured cron schedule",
	Long: `schedule runs in the foreground and triggers digest runs at the
cron expressions configured under schedule: in the config file. Each
triggered digest is emailed when delivery is configured. Stop with
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := logging.New(cfg.LogLevel)

		if cfg.Schedule.Daily == "" && cfg.Schedule.Weekly == "" {
			exitWithError(ExitConfigError, "no schedule configured (set schedule.daily or schedule.weekly)")
		}

		c := cron.New()
		add := func(expr string, period paper.Period) {
			if expr == "" {
				return
			}
			_, err := c.AddFunc(expr, func() { runScheduled(cfg, period) })
			if err != nil {
				exitWithError(ExitConfigError, "invalid %s schedule %q: %v", period, expr, err)
			}
			log.Info("scheduled digest", "period", period, "cron", expr)
		}
		add(cfg.Schedule.Daily, paper.Daily)
		add(cfg.Schedule.Weekly, paper.Weekly)

		c.Start()
		defer c.Stop()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Info("shutting down", "signal", s)
		return nil
	},
}

func runScheduled(cfg *config.Config, period paper.Period) {
	log := logging.New(cfg.LogLevel)

	ctx := context.Background()
	d, err := executeRun(ctx, cfg, period)
	if err != nil {
		log.Error("scheduled digest run failed", "period", period, "error", err)
		return
	}
	log.Info("scheduled digest assembled", "period", period,
		"entries", len(d.Entries), "partial", d.Partial)

	if cfg.Email.To == "" {
		log.Warn("email.to not configured, digest not delivered")
		return
	}
	if err := sendDigest(ctx, cfg, d); err != nil {
		log.Error("scheduled digest delivery failed", "period", period, "error", err)
	}
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
