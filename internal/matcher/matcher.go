// Package matcher decides which paths a backup run leaves out.
//
// A blacklist entry is either a glob (doublestar syntax, matched against the
// whole slash-separated relative path) or, when it does not parse as a glob, a
// literal name that matches at any depth. Every entry is normalized into a
// glob when the matcher is built, so checking never looks at the original
// form again.
package matcher

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globMeta = `*?[]{}\`

// Matcher is immutable after New and safe for concurrent use.
type Matcher struct {
	patterns []string
}

// New compiles patterns. It never fails: entries that cannot be expressed as
// a glob even after escaping are dropped.
func New(patterns []string) *Matcher {
	m := &Matcher{patterns: make([]string, 0, len(patterns))}
	seen := make(map[string]struct{}, len(patterns))

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		compiled, ok := compile(p)
		if !ok {
			continue
		}
		if _, dup := seen[compiled]; dup {
			continue
		}
		seen[compiled] = struct{}{}
		m.patterns = append(m.patterns, compiled)
	}

	return m
}

func compile(p string) (string, bool) {
	p = filepath.ToSlash(p)
	if doublestar.ValidatePattern(p) {
		return p, true
	}

	literal := "**/" + escape(p)
	if doublestar.ValidatePattern(literal) {
		return literal, true
	}
	return "", false
}

func escape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(globMeta, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Patterns returns the normalized patterns in build order.
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Empty reports whether the matcher excludes nothing.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// IsExcluded reports whether rel, or any single component of rel, matches.
func (m *Matcher) IsExcluded(rel string) bool {
	if m.Empty() {
		return false
	}

	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	if m.match(rel) {
		return true
	}

	if !strings.Contains(rel, "/") {
		return false
	}
	for _, component := range strings.Split(rel, "/") {
		if component == "" || component == "." {
			continue
		}
		if m.match(component) {
			return true
		}
	}
	return false
}

func (m *Matcher) match(name string) bool {
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
