package cmd

import (
	"fmt"
	"time"

	"github.com/lupppig/dirbackup/internal/config"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/notify"
	"github.com/lupppig/dirbackup/internal/scheduler"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the backup jobs from the config file once",
		Long: `Run every job defined under "jobs" in the config file, in order. A failing
job does not stop the ones after it; dirbackup exits with a non-zero status
if any job failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := logger.FromContext(ctx)
			cfg := config.GetConfig()

			jobs, err := selectJobs(cfg, only)
			if err != nil {
				return err
			}

			n := notify.BuildNotifier(cfg)
			var failed []string
			for i, job := range jobs {
				if ctx.Err() != nil {
					break
				}
				if job.ID == "" {
					job.ID = fmt.Sprintf("job-%d", i+1)
				}

				start := time.Now()
				l.Info("Running job", "job", job.ID, "sources", len(job.Sources), "target", job.Target)
				if err := scheduler.RunJob(ctx, job, n, l); err != nil {
					l.Error("Job failed", "job", job.ID, "error", err)
					failed = append(failed, job.ID)
					continue
				}
				l.Info("Job finished", "job", job.ID, "duration", time.Since(start).String())
			}

			if err := ctx.Err(); err != nil {
				return apperrors.Wrap(err, apperrors.TypeCancelled, "Run cancelled", "")
			}
			if len(failed) > 0 {
				return apperrors.New(apperrors.TypeResource,
					fmt.Sprintf("%d of %d jobs failed: %v", len(failed), len(jobs), failed),
					"See the log output above for the failing files.")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ran %d jobs\n", len(jobs))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&only, "job", nil, "run only the jobs with these ids")
	return cmd
}

// selectJobs returns the configured jobs with defaults applied, limited to ids
// when any are given.
func selectJobs(cfg *config.Config, ids []string) ([]config.JobConfig, error) {
	if len(cfg.Jobs) == 0 {
		return nil, apperrors.New(apperrors.TypeConfig, "No jobs configured",
			"Add a jobs section to dirbackup.yaml or pass --config.")
	}

	if len(ids) == 0 {
		jobs := make([]config.JobConfig, 0, len(cfg.Jobs))
		for _, j := range cfg.Jobs {
			jobs = append(jobs, j.WithDefaults(cfg.Defaults))
		}
		return jobs, nil
	}

	jobs := make([]config.JobConfig, 0, len(ids))
	for _, id := range ids {
		j, ok := cfg.Job(id)
		if !ok {
			return nil, apperrors.New(apperrors.TypeNotFound,
				fmt.Sprintf("Job not found: %s", id), "Check the job ids in the config file.")
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
