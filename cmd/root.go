package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lupppig/dirbackup/internal/config"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/spf13/cobra"
)

const DIRBACKUP_VERSION = "0.1.0"

type globalOptions struct {
	configFile string
	logJSON    bool
	noColor    bool
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "dirbackup",
		Short: "dirbackup copies directory trees into a backup location",
		Long: `dirbackup is a command-line tool that copies files and directories into a target
directory, skipping anything that matches an exclusion pattern or an ignore file.
Name collisions in the target can overwrite, skip or rename. Backups can be run
once from flags, from jobs in a config file, or on a cron schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Initialize(opts.configFile); err != nil {
				return err
			}
			cfg := config.GetConfig()

			if !cmd.Flags().Changed("log-json") {
				opts.logJSON = cfg.LogJSON
			}
			if !cmd.Flags().Changed("no-color") {
				opts.noColor = cfg.NoColor
			}

			l := logger.New(logger.Config{
				Writer:  cmd.ErrOrStderr(),
				JSON:    opts.logJSON,
				NoColor: opts.noColor,
				Level:   parseLevel(cfg.LogLevel),
			})

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logger.WithContext(ctx, l))
			return nil
		},
	}

	root.Version = DIRBACKUP_VERSION
	root.SetVersionTemplate("dirbackup version {{ .Version }}\n")

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to configuration file (default ./dirbackup.yaml or ~/.dirbackup/dirbackup.yaml)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored log output")

	root.AddCommand(
		newBackupCmd(),
		newRunCmd(),
		newScheduleCmd(),
		newVerifyCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
