package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lupppig/dirbackup/internal/collision"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/matcher"
	"github.com/lupppig/dirbackup/internal/walker"
)

// Engine copies source trees into a target directory. An Engine holds no
// per-run state and may be reused for sequential or concurrent runs.
type Engine struct {
	observer Observer
	logger   *logger.Logger
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates req, creates the target and copies every source in order.
//
// Only request errors (no sources, missing source, target not creatable) are
// returned as errors, and no events are emitted for them. Everything that
// goes wrong per source or per file is counted in the result instead. If ctx
// is cancelled the run stops at the next entry and Run returns the partial
// result together with a TypeCancelled error.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(req.Target, 0755); err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.TypeResource,
			"Failed to create target directory",
			"Check that the parent of the target is writable.")
	}

	r := &run{
		req:      req,
		observer: e.observer,
		log:      e.logger.With("run", uuid.NewString()),
		matcher:  matcher.New(req.Blacklist),
	}
	r.walkOpts = req.WalkOptions(r.matcher)

	start := time.Now()
	r.log.Info("Backup started",
		"sources", len(req.Sources),
		"target", req.Target,
		"collision", req.Collision.String(),
		"patterns", len(r.matcher.Patterns()),
		"ignore_files", req.RespectIgnoreFiles,
	)

	r.total = Count(ctx, req.Sources, r.matcher, r.walkOpts)
	r.log.Debug("Counted files", "total", r.total)

	for _, src := range req.Sources {
		if r.checkCancelled(ctx) {
			break
		}
		r.copySource(ctx, src)
	}

	res := r.result()
	r.emitComplete(res)

	r.log.Info("Backup finished",
		"copied", res.CopiedCount,
		"skipped", res.SkippedCount,
		"errors", res.ErrorCount,
		"bytes", res.BytesCopied,
		"duration", time.Since(start).String(),
	)

	if res.Cancelled {
		return res, apperrors.Wrap(ctx.Err(), apperrors.TypeCancelled, "Backup cancelled", "")
	}
	return res, nil
}

type run struct {
	req      Request
	observer Observer
	log      *logger.Logger
	matcher  *matcher.Matcher
	walkOpts walker.Options

	total     uint64
	copied    uint64
	skipped   uint64
	bytes     int64
	errors    []string
	cancelled bool
}

func (r *run) checkCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.cancelled = true
	}
	return r.cancelled
}

func (r *run) copySource(ctx context.Context, src string) {
	info, err := os.Stat(src)
	if err != nil {
		r.fail(fmt.Sprintf("Failed to read source %s", src), src, err)
		return
	}

	switch {
	case info.IsDir():
		r.copyDir(ctx, src)
	case info.Mode().IsRegular():
		r.copySingleFile(src)
	default:
		r.log.Debug("Skipping source that is neither file nor directory", "source", src)
	}
}

func (r *run) copySingleFile(src string) {
	name := filepath.Base(src)
	if r.matcher.IsExcluded(name) {
		r.log.Debug("Excluded", "file", name)
		return
	}

	r.copyEntry(src, filepath.Join(r.req.Target, name), name)
}

func (r *run) copyDir(ctx context.Context, src string) {
	root := r.req.DestRoot(src)

	if err := os.MkdirAll(root, 0755); err != nil {
		r.fail(fmt.Sprintf("Failed to create target dir %s", root), src, err)
		return
	}

	for entry, err := range walker.Walk(src, r.walkOpts) {
		if r.checkCancelled(ctx) {
			return
		}
		if err != nil {
			r.fail("Walker error", entry.Path, err)
			continue
		}

		if r.matcher.IsExcluded(entry.RelPath) {
			continue
		}

		dest := filepath.Join(root, filepath.FromSlash(entry.RelPath))

		if entry.IsDir {
			if err := os.MkdirAll(dest, 0755); err != nil {
				r.fail(fmt.Sprintf("Failed to create dir %s", dest), entry.Path, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			r.fail(fmt.Sprintf("Failed to create parent dir %s", filepath.Dir(dest)), entry.Path, err)
			continue
		}

		r.copyEntry(entry.Path, dest, entry.RelPath)
	}
}

// copyEntry resolves a collision on dest and copies src there. display is
// the name reported in the progress event.
func (r *run) copyEntry(src, dest, display string) {
	action := collision.Resolve(dest, r.req.Collision)
	if action.Skip {
		r.skipped++
		r.log.Debug("Skipped existing file", "file", display)
		return
	}

	n, err := copyFile(src, action.Path)
	if err != nil {
		r.fail(fmt.Sprintf("Failed to copy %s", src), src, err)
		return
	}

	r.copied++
	r.bytes += n
	r.emitProgress(ProgressEvent{
		CurrentFile:  display,
		CopiedCount:  r.copied,
		SkippedCount: r.skipped,
		TotalCount:   r.total,
	})
}

func (r *run) fail(msg, file string, err error) {
	r.errors = append(r.errors, fmt.Sprintf("%s: %v", msg, err))
	r.log.Warn(msg, "file", file, "error", err)
	r.emitError(ErrorEvent{Message: err.Error(), File: file})
}

func (r *run) result() Result {
	return Result{
		Success:      len(r.errors) == 0 && !r.cancelled,
		CopiedCount:  r.copied,
		SkippedCount: r.skipped,
		ErrorCount:   len(r.errors),
		TotalCount:   r.total,
		BytesCopied:  r.bytes,
		Cancelled:    r.cancelled,
		Message:      summarize(r.copied, r.skipped, len(r.errors), r.cancelled),
		Errors:       r.errors,
	}
}

func (r *run) emitProgress(ev ProgressEvent) {
	r.deliver("progress", func(o Observer) error { return o.OnProgress(ev) })
}

func (r *run) emitError(ev ErrorEvent) {
	r.deliver("error", func(o Observer) error { return o.OnError(ev) })
}

func (r *run) emitComplete(res Result) {
	r.deliver("complete", func(o Observer) error { return o.OnComplete(res) })
}

// deliver is fire-and-forget: failures and panics in the observer are logged
// and dropped.
func (r *run) deliver(kind string, fn func(Observer) error) {
	if r.observer == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Debug("Observer panicked", "event", kind, "panic", p)
		}
	}()
	if err := fn(r.observer); err != nil {
		r.log.Debug("Event delivery failed", "event", kind, "error", err)
	}
}
