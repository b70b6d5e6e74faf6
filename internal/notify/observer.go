package notify

import (
	"context"
	"errors"
	"time"

	"github.com/lupppig/dirbackup/internal/backup"
)

// Observer sends one notification when a backup run completes. Progress and
// error events are ignored.
type Observer struct {
	ctx      context.Context
	notifier Notifier
	job      string
	sources  []string
	target   string
	start    time.Time
}

func NewObserver(ctx context.Context, n Notifier, job string, req backup.Request) *Observer {
	return &Observer{
		ctx:      ctx,
		notifier: n,
		job:      job,
		sources:  req.Sources,
		target:   req.Target,
		start:    time.Now(),
	}
}

func (o *Observer) OnProgress(backup.ProgressEvent) error { return nil }

func (o *Observer) OnError(backup.ErrorEvent) error { return nil }

func (o *Observer) OnComplete(res backup.Result) error {
	if o.notifier == nil {
		return nil
	}

	stats := StatsFromResult(res)
	stats.Job = o.job
	stats.Sources = o.sources
	stats.Target = o.target
	stats.Duration = time.Since(o.start)

	// the run context may already be cancelled; the notification still goes out
	return o.notifier.Notify(context.WithoutCancel(o.ctx), stats)
}

// StatsFromResult maps the counters of a run onto notification stats.
func StatsFromResult(res backup.Result) Stats {
	stats := Stats{
		Status:    StatusSuccess,
		Operation: "Backup",
		Copied:    res.CopiedCount,
		Skipped:   res.SkippedCount,
		Errors:    res.ErrorCount,
		Size:      res.BytesCopied,
		Message:   res.Message,
	}
	if !res.Success {
		stats.Status = StatusError
		stats.Error = errors.New(res.Message)
	}
	return stats
}
