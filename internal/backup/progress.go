package backup

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// ProgressBar renders engine progress as a terminal bar. The bar is created
// on the first progress event, since that is when the total is known.
type ProgressBar struct {
	mu   sync.Mutex
	name string
	p    *mpb.Progress
	bar  *mpb.Bar
}

func NewProgressBar(w io.Writer, name string) *ProgressBar {
	return &ProgressBar{
		name: name,
		p:    mpb.New(mpb.WithWidth(64), mpb.WithOutput(w)),
	}
}

func (pb *ProgressBar) OnProgress(ev ProgressEvent) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.bar == nil {
		pb.bar = pb.p.AddBar(int64(ev.TotalCount),
			mpb.PrependDecorators(
				decor.Name(pb.name, decor.WC{W: len(pb.name) + 1}),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(), " [DONE]"),
			),
		)
	}

	current := int64(ev.CopiedCount + ev.SkippedCount)
	// the total is a snapshot from the counting pass and may be short
	if total := int64(ev.TotalCount); current > total {
		pb.bar.SetTotal(current, false)
	}
	pb.bar.SetCurrent(current)
	return nil
}

func (pb *ProgressBar) OnError(ErrorEvent) error {
	return nil
}

// OnComplete finishes the bar and waits for the final render.
func (pb *ProgressBar) OnComplete(Result) error {
	pb.mu.Lock()
	if pb.bar != nil {
		pb.bar.SetTotal(-1, true)
	}
	pb.mu.Unlock()

	pb.p.Wait()
	return nil
}
