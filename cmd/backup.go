package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/lupppig/dirbackup/internal/backup"
	"github.com/lupppig/dirbackup/internal/collision"
	"github.com/lupppig/dirbackup/internal/config"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/notify"
	"github.com/lupppig/dirbackup/internal/verify"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type backupOptions struct {
	target      string
	exclude     []string
	ignoreFiles bool
	ignoreFile  string
	includeRoot bool
	onCollision string
	progress    bool
	verify      bool
}

func newBackupCmd() *cobra.Command {
	opts := &backupOptions{}

	cmd := &cobra.Command{
		Use:   "backup SOURCE...",
		Short: "Copy files and directories into a backup target",
		Long: `Copy each SOURCE into the target directory given with --to.

Directories are copied recursively. Entries matching an --exclude pattern are
skipped at any depth; a pattern without glob characters matches a file or
directory name exactly. With --ignore-files, .gitignore files (and the file
named by --ignore-file) are honored as well. Flags left unset fall back to the
defaults section of the config file.

dirbackup exits with a non-zero status when any file fails to copy.`,
		Example: `  dirbackup backup ~/projects ~/notes.txt --to /mnt/backup --exclude node_modules --exclude '*.log'
  dirbackup backup ~/projects --to /mnt/backup --include-root --on-collision rename`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd, args, config.GetConfig())
			if err != nil {
				return err
			}
			return runBackup(cmd, req, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.target, "to", "t", "", "target directory")
	f.StringArrayVarP(&opts.exclude, "exclude", "e", nil, "exclude entries matching a name or glob pattern (repeatable)")
	f.BoolVar(&opts.ignoreFiles, "ignore-files", false, "honor .gitignore files and .git/info/exclude")
	f.StringVar(&opts.ignoreFile, "ignore-file", "", "additional per-directory ignore file name, implies --ignore-files (e.g. .backupignore)")
	f.BoolVar(&opts.includeRoot, "include-root", false, "copy directory sources into target/<name> instead of target")
	f.StringVar(&opts.onCollision, "on-collision", "overwrite", "what to do when a file exists in the target (overwrite, skip, rename)")
	f.BoolVar(&opts.progress, "progress", true, "show a progress bar when stdout is a terminal")
	f.BoolVar(&opts.verify, "verify", false, "compare checksums of every copied file after the backup")

	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// request merges the flags with the config defaults.
func (o *backupOptions) request(cmd *cobra.Command, args []string, cfg *config.Config) (backup.Request, error) {
	d := cfg.Defaults
	flags := cmd.Flags()

	if flags.Changed("ignore-files") {
		d.RespectIgnoreFiles = o.ignoreFiles
	}
	if flags.Changed("ignore-file") {
		d.IgnoreFile = o.ignoreFile
	}
	if flags.Changed("include-root") {
		d.IncludeSourceRoot = o.includeRoot
	}
	if flags.Changed("on-collision") || d.CollisionPolicy == "" {
		d.CollisionPolicy = o.onCollision
	}

	policy := strings.ToLower(strings.TrimSpace(d.CollisionPolicy))
	switch policy {
	case "overwrite", "skip", "rename":
	default:
		return backup.Request{}, apperrors.New(apperrors.TypeConfig,
			fmt.Sprintf("Invalid collision policy: %q", d.CollisionPolicy),
			"Use one of: overwrite, skip, rename.")
	}

	return backup.Request{
		Sources:               args,
		Target:                o.target,
		Blacklist:             append(append([]string{}, d.Blacklist...), o.exclude...),
		RespectIgnoreFiles:    d.RespectIgnoreFiles || d.IgnoreFile != "",
		IgnoreFileName:        d.IgnoreFile,
		IncludeSourceRootName: d.IncludeSourceRoot,
		Collision:             collision.ParsePolicy(policy),
	}, nil
}

func runBackup(cmd *cobra.Command, req backup.Request, opts *backupOptions) error {
	ctx := cmd.Context()
	l := logger.FromContext(ctx)

	observers := backup.MultiObserver{}
	if opts.progress && isTerminal(cmd) {
		observers = append(observers, backup.NewProgressBar(cmd.OutOrStdout(), "Copying"))
	}
	if n := notify.BuildNotifier(config.GetConfig()); n != nil {
		observers = append(observers, notify.NewObserver(ctx, n, "", req))
	}

	engine := backup.NewEngine(
		backup.WithObserver(observers),
		backup.WithLogger(l),
	)

	res, err := engine.Run(ctx, req)
	if err != nil {
		if apperrors.IsType(err, apperrors.TypeCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e)
	}

	if opts.verify {
		if err := runVerify(cmd, req); err != nil {
			return err
		}
	}

	if !res.Success {
		return apperrors.New(apperrors.TypeResource,
			fmt.Sprintf("Backup finished with %d errors", res.ErrorCount),
			"Check the listed paths for permissions and free space.")
	}
	return nil
}

func runVerify(cmd *cobra.Command, req backup.Request) error {
	rep, err := verify.Verify(cmd.Context(), req)
	out := cmd.OutOrStdout()

	for i, m := range rep.Mismatches {
		if i >= 10 {
			fmt.Fprintf(out, "  ... and %d more\n", len(rep.Mismatches)-10)
			break
		}
		fmt.Fprintf(out, "  - %s\n", m)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Verified %d files\n", rep.Checked)
	return nil
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
