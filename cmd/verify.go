package cmd

import (
	"github.com/lupppig/dirbackup/internal/config"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	opts := &backupOptions{}

	cmd := &cobra.Command{
		Use:   "verify SOURCE...",
		Short: "Compare a backup with its sources by checksum",
		Long: `Walk each SOURCE with the same exclusions a backup would use and compare the
SHA-256 digest of every file with its copy under --to. Files that are missing
or differ are listed and dirbackup exits with a non-zero status.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd, args, config.GetConfig())
			if err != nil {
				return err
			}

			l := logger.FromContext(cmd.Context())
			l.Info("Verifying backup", "sources", len(req.Sources), "target", req.Target)
			return runVerify(cmd, req)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.target, "to", "t", "", "backup target directory")
	f.StringArrayVarP(&opts.exclude, "exclude", "e", nil, "exclude entries matching a name or glob pattern (repeatable)")
	f.BoolVar(&opts.ignoreFiles, "ignore-files", false, "honor .gitignore files and .git/info/exclude")
	f.StringVar(&opts.ignoreFile, "ignore-file", "", "additional per-directory ignore file name, implies --ignore-files")
	f.BoolVar(&opts.includeRoot, "include-root", false, "sources were copied into target/<name>")
	f.StringVar(&opts.onCollision, "on-collision", "overwrite", "collision policy the backup used")

	_ = cmd.MarkFlagRequired("to")
	return cmd
}
