package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/lupppig/dirbackup/internal/matcher"
	"github.com/lupppig/dirbackup/internal/walker"
)

// Count walks sources the same way Run does and returns how many files would
// be copied. It is read-only and skips entries it cannot read. The number is
// only a snapshot: if the trees change before the copy pass, progress totals
// drift.
func Count(ctx context.Context, sources []string, m *matcher.Matcher, opts walker.Options) uint64 {
	var total uint64

	for _, src := range sources {
		if ctx.Err() != nil {
			return total
		}

		info, err := os.Stat(src)
		if err != nil {
			continue
		}

		if !info.IsDir() {
			if info.Mode().IsRegular() && !m.IsExcluded(filepath.Base(src)) {
				total++
			}
			continue
		}

		for e, err := range walker.Walk(src, opts) {
			if ctx.Err() != nil {
				return total
			}
			if err != nil || e.IsDir {
				continue
			}
			if !m.IsExcluded(e.RelPath) {
				total++
			}
		}
	}

	return total
}
