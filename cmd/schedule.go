package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/config"
	"github.com/marcus/erpsync/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the sync schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		printJSON(cfg.Schedule)
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the schedule in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("enabled") {
			cfg.Schedule.Enabled, _ = cmd.Flags().GetBool("enabled")
		}
		if cmd.Flags().Changed("time") {
			cfg.Schedule.Time, _ = cmd.Flags().GetString("time")
		}
		if cmd.Flags().Changed("type") {
			cfg.Schedule.Kind, _ = cmd.Flags().GetString("type")
		}
		if cmd.Flags().Changed("days") {
			days, _ := cmd.Flags().GetStringSlice("days")
			cfg.Schedule.Days = schedule.Normalize(days)
		}

		// Validate through the scheduler before persisting.
		s := schedule.New(func(context.Context, string) {})
		if err := s.Update(context.Background(), schedule.Config{
			Enabled: cfg.Schedule.Enabled,
			Kind:    cfg.Schedule.Kind,
			Time:    cfg.Schedule.Time,
			Days:    cfg.Schedule.Days,
		}); err != nil {
			return err
		}
		s.Stop()

		if err := config.Save(configPath, cfg); err != nil {
			return err
		}
		printJSON(cfg.Schedule)
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run in the foreground, firing scheduled syncs",
	RunE: func(cmd *cobra.Command, args []string) error {
		runNow, _ := cmd.Flags().GetBool("run-now")

		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.cfg.Schedule.Enabled && !runNow {
			return fmt.Errorf("schedule is disabled; enable it with 'erpsync schedule set --enabled'")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		s := schedule.New(func(ctx context.Context, kind string) {
			var err error
			if kind == "full" {
				_, err = a.sync.FullSync(ctx, "", a.cfg.Sync.Mode == "parallel")
			} else {
				_, err = a.sync.IncrementalSync(ctx, "")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "scheduled sync failed: %v\n", err)
			}
		})
		if err := s.Update(ctx, schedule.Config{
			Enabled: a.cfg.Schedule.Enabled,
			Kind:    a.cfg.Schedule.Kind,
			Time:    a.cfg.Schedule.Time,
			Days:    a.cfg.Schedule.Days,
		}); err != nil {
			return err
		}
		defer s.Stop()

		if runNow {
			s.RunNow(ctx)
		}

		printJSON(s.Status())
		<-ctx.Done()
		return nil
	},
}

func init() {
	scheduleSetCmd.Flags().Bool("enabled", false, "enable or disable the schedule")
	scheduleSetCmd.Flags().String("time", "06:00", "time of day, HH:MM")
	scheduleSetCmd.Flags().String("type", "incremental", "sync type: full or incremental")
	scheduleSetCmd.Flags().StringSlice("days", nil, "weekdays, e.g. mon,tue,wed")
	scheduleCmd.AddCommand(scheduleSetCmd)
	daemonCmd.Flags().Bool("run-now", false, "fire one sync immediately on start")
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(daemonCmd)
}
