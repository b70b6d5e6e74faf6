package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/lupppig/dirbackup/internal/config"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/notify"
	"github.com/lupppig/dirbackup/internal/scheduler"
	"github.com/spf13/cobra"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scheduled backup jobs until interrupted",
		Long: `Load every job with a "schedule" from the config file and run it on that
schedule until SIGINT or SIGTERM. A schedule is a cron expression, a
descriptor such as @daily, or an interval such as 6h. At most max_concurrent
jobs run at the same time and a job still running is not started again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l := logger.FromContext(ctx)
			cfg := config.GetConfig()

			s, err := buildScheduler(cfg, l)
			if err != nil {
				return err
			}

			jobs := s.ListJobs()
			l.Info("Starting scheduler", "job_count", len(jobs), "max_concurrent", cfg.MaxConcurrent)

			s.Start(ctx)
			<-ctx.Done()

			l.Info("Shutting down scheduler")
			<-s.Stop().Done()
			return nil
		},
	}

	cmd.AddCommand(newScheduleListCmd())
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scheduled jobs and their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.FromContext(cmd.Context())

			s, err := buildScheduler(config.GetConfig(), l)
			if err != nil {
				return err
			}
			s.Start(cmd.Context())
			defer s.Stop()

			out := cmd.OutOrStdout()
			for _, j := range s.ListJobs() {
				next := "N/A"
				if j.NextRun != nil {
					next = j.NextRun.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%-20s %-16s %s\n", j.ID, j.Schedule, next)
			}
			return nil
		},
	}
}

func buildScheduler(cfg *config.Config, l *logger.Logger) (*scheduler.Scheduler, error) {
	s := scheduler.New(cfg.MaxConcurrent, scheduler.NewRunner(notify.BuildNotifier(cfg), l), l)

	added := 0
	for _, j := range cfg.Jobs {
		if j.Schedule == "" {
			continue
		}
		id, err := s.AddJob(j.WithDefaults(cfg.Defaults))
		if err != nil {
			l.Warn("Failed to schedule job", "id", j.ID, "error", err)
			continue
		}
		l.Debug("Scheduled job", "id", id, "schedule", j.Schedule)
		added++
	}

	if added == 0 {
		return nil, apperrors.New(apperrors.TypeConfig, "No scheduled jobs configured",
			`Give at least one job a "schedule", e.g. "@daily" or "6h".`)
	}
	return s, nil
}
