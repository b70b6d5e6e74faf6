package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lupppig/dirbackup/internal/config"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured jobs can run",
		Long: `Check every job in the config file: its sources must exist, its target must be
writable (or creatable) and its schedule, if any, must parse.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.FromContext(cmd.Context())
			l.Info("dirbackup doctor - configuration check", "os", runtime.GOOS, "arch", runtime.GOARCH)

			cfg := config.GetConfig()
			out := cmd.OutOrStdout()
			if len(cfg.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs configured.")
				return nil
			}

			allOk := true
			for i, j := range cfg.Jobs {
				name := j.ID
				if name == "" {
					name = fmt.Sprintf("job-%d", i+1)
				}
				fmt.Fprintf(out, "[%s]\n", name)
				if !checkJob(out, j.WithDefaults(cfg.Defaults)) {
					allOk = false
				}
				fmt.Fprintln(out)
			}

			if !allOk {
				return apperrors.New(apperrors.TypeConfig, "Some jobs cannot run",
					"Fix the items marked [ ] above.")
			}
			fmt.Fprintln(out, "Result: all jobs are ready.")
			return nil
		},
	}
}

func checkJob(out io.Writer, j config.JobConfig) bool {
	ok := true
	report := func(good bool, format string, a ...any) {
		mark := "[x]"
		if !good {
			mark = "[ ]"
			ok = false
		}
		fmt.Fprintf(out, "  %s %s\n", mark, fmt.Sprintf(format, a...))
	}

	if len(j.Sources) == 0 {
		report(false, "no sources")
	}
	for _, src := range j.Sources {
		_, err := os.Stat(src)
		report(err == nil, "source %s", src)
	}

	if j.Target == "" {
		report(false, "no target")
	} else {
		report(targetWritable(j.Target), "target %s writable", j.Target)
	}

	if j.Schedule != "" {
		_, err := cron.ParseStandard(scheduler.CronSpec(j.Schedule))
		report(err == nil, "schedule %q", j.Schedule)
	}
	return ok
}

// targetWritable reports whether a file can be created in dir, or in its
// nearest existing ancestor when dir does not exist yet.
func targetWritable(dir string) bool {
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return false
			}
			f, err := os.CreateTemp(dir, ".dirbackup-doctor-*")
			if err != nil {
				return false
			}
			name := f.Name()
			f.Close()
			os.Remove(name)
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
