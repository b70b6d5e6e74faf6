package collision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Policy decides what happens when a destination file already exists.
type Policy int

const (
	Overwrite Policy = iota
	Skip
	Rename
)

// MaxRenameAttempts bounds the stem_N probing of Rename.
const MaxRenameAttempts = 10000

func (p Policy) String() string {
	switch p {
	case Skip:
		return "skip"
	case Rename:
		return "rename"
	default:
		return "overwrite"
	}
}

// ParsePolicy maps "overwrite", "skip" and "rename" to a Policy. Anything
// else is Overwrite.
func ParsePolicy(s string) Policy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip":
		return Skip
	case "rename":
		return Rename
	default:
		return Overwrite
	}
}

// Action is the outcome of Resolve: either skip the file or write it to Path.
type Action struct {
	Skip bool
	Path string
}

func (a Action) String() string {
	if a.Skip {
		return "skip"
	}
	return "write " + a.Path
}

// Resolve picks the effective destination for dest. It only stats the
// filesystem.
func Resolve(dest string, p Policy) Action {
	if !exists(dest) {
		return Action{Path: dest}
	}

	switch p {
	case Skip:
		return Action{Skip: true}
	case Rename:
		return Action{Path: availableName(dest)}
	default:
		return Action{Path: dest}
	}
}

func availableName(dest string) string {
	dir := filepath.Dir(dest)
	stem, ext := splitName(filepath.Base(dest))

	for i := 1; i <= MaxRenameAttempts; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return dest
}

// splitName splits on the last dot; a name whose only dot is the leading one
// has no extension.
func splitName(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
