package cmd

import (
	"runtime"

	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dirbackup version",
		Run: func(cmd *cobra.Command, args []string) {
			l := logger.FromContext(cmd.Context())
			l.Info("dirbackup",
				"version", Version,
				"commit", Commit,
				"built_at", BuildDate,
				"go_version", runtime.Version(),
				"os", runtime.GOOS,
				"arch", runtime.GOARCH,
			)
		},
	}
}
