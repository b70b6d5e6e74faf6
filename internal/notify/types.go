package notify

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Stats struct {
	Status    Status        `json:"status"`
	Operation string        `json:"operation"` // "Backup"
	Job       string        `json:"job,omitempty"`
	Sources   []string      `json:"sources"`
	Target    string        `json:"target"`
	Copied    uint64        `json:"copied"`
	Skipped   uint64        `json:"skipped"`
	Errors    int           `json:"errors"`
	Size      int64         `json:"size"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message"`
	Error     error         `json:"-"`
}

type Notifier interface {
	Notify(ctx context.Context, stats Stats) error
}

type MultiNotifier struct {
	Notifiers []Notifier
}

// Notify calls every notifier and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, stats Stats) error {
	var errs []error
	for _, n := range m.Notifiers {
		if err := n.Notify(ctx, stats); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
