package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lupppig/dirbackup/internal/collision"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/matcher"
	"github.com/lupppig/dirbackup/internal/walker"
)

// Request describes one backup run. The engine does not keep it after Run
// returns.
type Request struct {
	Sources               []string
	Target                string
	Blacklist             []string
	RespectIgnoreFiles    bool
	IgnoreFileName        string
	IncludeSourceRootName bool
	Collision             collision.Policy
}

// Validate checks the request without touching the target.
func (r Request) Validate() error {
	if len(r.Sources) == 0 {
		return apperrors.ErrNoSources
	}

	for _, src := range r.Sources {
		if _, err := os.Stat(src); err != nil {
			return apperrors.Wrap(err, apperrors.TypeNotFound,
				fmt.Sprintf("Source path does not exist: %s", src),
				"Check the path and that it is readable by the current user.")
		}
	}

	if strings.TrimSpace(r.Target) == "" {
		return apperrors.New(apperrors.TypeConfig, "No target path provided", "Pass a target directory with --to.")
	}
	return nil
}

// DestRoot returns the directory the contents of the directory source src
// are copied into.
func (r Request) DestRoot(src string) string {
	if !r.IncludeSourceRootName {
		return r.Target
	}
	name := filepath.Base(filepath.Clean(src))
	if name == "." || name == string(filepath.Separator) {
		return r.Target
	}
	return filepath.Join(r.Target, name)
}

// WalkOptions prunes directories excluded by m and the target itself when it
// lives inside a source, so a run never copies its own output. The target is
// recognized by its given path and by its symlink-resolved path, since the
// walker reports entries below a resolved root when a source is a symlink.
func (r Request) WalkOptions(m *matcher.Matcher) walker.Options {
	target, _ := filepath.Abs(r.Target)
	resolved := target
	if p, err := filepath.EvalSymlinks(target); err == nil {
		resolved = p
	}

	return walker.Options{
		RespectIgnoreFiles: r.RespectIgnoreFiles,
		IgnoreFileName:     r.IgnoreFileName,
		Prune: func(e walker.Entry) bool {
			if m.IsExcluded(e.RelPath) {
				return true
			}
			abs, err := filepath.Abs(e.Path)
			return err == nil && (abs == target || abs == resolved)
		},
	}
}

type ProgressEvent struct {
	CurrentFile  string `json:"current_file"`
	CopiedCount  uint64 `json:"copied_count"`
	SkippedCount uint64 `json:"skipped_count"`
	TotalCount   uint64 `json:"total_count"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

type Result struct {
	Success      bool     `json:"success"`
	CopiedCount  uint64   `json:"copied_count"`
	SkippedCount uint64   `json:"skipped_count"`
	ErrorCount   int      `json:"error_count"`
	TotalCount   uint64   `json:"total_count"`
	BytesCopied  int64    `json:"bytes_copied"`
	Cancelled    bool     `json:"cancelled,omitempty"`
	Message      string   `json:"message"`
	Errors       []string `json:"errors,omitempty"`
}

// Observer receives engine events. Returned errors are logged and otherwise
// ignored; they never change the outcome of a run.
type Observer interface {
	OnProgress(ProgressEvent) error
	OnError(ErrorEvent) error
	OnComplete(Result) error
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are no-ops.
type ObserverFuncs struct {
	Progress func(ProgressEvent) error
	Error    func(ErrorEvent) error
	Complete func(Result) error
}

func (f ObserverFuncs) OnProgress(ev ProgressEvent) error {
	if f.Progress == nil {
		return nil
	}
	return f.Progress(ev)
}

func (f ObserverFuncs) OnError(ev ErrorEvent) error {
	if f.Error == nil {
		return nil
	}
	return f.Error(ev)
}

func (f ObserverFuncs) OnComplete(r Result) error {
	if f.Complete == nil {
		return nil
	}
	return f.Complete(r)
}

// MultiObserver fans every event out to all observers, in order.
type MultiObserver []Observer

func (m MultiObserver) OnProgress(ev ProgressEvent) error {
	return m.each(func(o Observer) error { return o.OnProgress(ev) })
}

func (m MultiObserver) OnError(ev ErrorEvent) error {
	return m.each(func(o Observer) error { return o.OnError(ev) })
}

func (m MultiObserver) OnComplete(r Result) error {
	return m.each(func(o Observer) error { return o.OnComplete(r) })
}

func (m MultiObserver) each(fn func(Observer) error) error {
	var first error
	for _, o := range m {
		if o == nil {
			continue
		}
		// every observer sees the event even if an earlier one failed
		if err := fn(o); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func summarize(copied, skipped uint64, errCount int, cancelled bool) string {
	switch {
	case cancelled:
		return fmt.Sprintf("Cancelled after copying %d files", copied)
	case errCount > 0:
		return fmt.Sprintf("Copied %d files with %d errors", copied, errCount)
	case skipped > 0:
		return fmt.Sprintf("Copied %d files, skipped %d", copied, skipped)
	default:
		return fmt.Sprintf("Successfully copied %d files", copied)
	}
}
