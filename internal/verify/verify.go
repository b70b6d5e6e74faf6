package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lupppig/dirbackup/internal/backup"
	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/lupppig/dirbackup/internal/logger"
	"github.com/lupppig/dirbackup/internal/matcher"
	"github.com/lupppig/dirbackup/internal/walker"
)

type Reason string

const (
	ReasonMissing  Reason = "missing"
	ReasonChecksum Reason = "checksum mismatch"
	ReasonError    Reason = "unreadable"
)

type Mismatch struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Reason Reason `json:"reason"`
	Err    error  `json:"-"`
}

func (m Mismatch) String() string {
	if m.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", m.Source, m.Reason, m.Err)
	}
	return fmt.Sprintf("%s: %s", m.Source, m.Reason)
}

type Report struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (r Report) OK() bool {
	return len(r.Mismatches) == 0
}

func CalculateChecksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return CalculateChecksum(f)
}

// Verify compares every file a run of req would copy with its counterpart
// under the target. Files renamed on collision are not followed; they are
// checked against the original name.
//
// Request errors are returned as they are from Validate. When at least one
// file differs Verify returns the report and a TypeIntegrity error.
func Verify(ctx context.Context, req backup.Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}

	l := logger.FromContext(ctx)
	m := matcher.New(req.Blacklist)
	opts := req.WalkOptions(m)

	var rep Report
	for _, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return rep, apperrors.Wrap(err, apperrors.TypeCancelled, "Verify cancelled", "")
		}

		info, err := os.Stat(src)
		if err != nil {
			rep.add(Mismatch{Source: src, Reason: ReasonError, Err: err})
			continue
		}

		if !info.IsDir() {
			name := filepath.Base(src)
			if info.Mode().IsRegular() && !m.IsExcluded(name) {
				rep.compare(src, filepath.Join(req.Target, name))
			}
			continue
		}

		root := req.DestRoot(src)
		for entry, err := range walker.Walk(src, opts) {
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				rep.add(Mismatch{Source: entry.Path, Reason: ReasonError, Err: err})
				continue
			}
			if entry.IsDir || m.IsExcluded(entry.RelPath) {
				continue
			}
			rep.compare(entry.Path, filepath.Join(root, filepath.FromSlash(entry.RelPath)))
		}
	}

	if err := ctx.Err(); err != nil {
		return rep, apperrors.Wrap(err, apperrors.TypeCancelled, "Verify cancelled", "")
	}

	l.Info("Verify finished", "checked", rep.Checked, "mismatches", len(rep.Mismatches))
	if !rep.OK() {
		return rep, apperrors.New(apperrors.TypeIntegrity,
			fmt.Sprintf("%d of %d files differ from the source", len(rep.Mismatches), rep.Checked),
			"Run the backup again with --on-collision overwrite.")
	}
	return rep, nil
}

func (r *Report) add(m Mismatch) {
	r.Mismatches = append(r.Mismatches, m)
}

func (r *Report) compare(src, dst string) {
	r.Checked++

	if _, err := os.Stat(dst); os.IsNotExist(err) {
		r.add(Mismatch{Source: src, Target: dst, Reason: ReasonMissing})
		return
	}

	want, err := FileChecksum(src)
	if err != nil {
		r.add(Mismatch{Source: src, Target: dst, Reason: ReasonError, Err: err})
		return
	}
	got, err := FileChecksum(dst)
	if err != nil {
		r.add(Mismatch{Source: src, Target: dst, Reason: ReasonError, Err: err})
		return
	}
	if want != got {
		r.add(Mismatch{Source: src, Target: dst, Reason: ReasonChecksum})
	}
}
