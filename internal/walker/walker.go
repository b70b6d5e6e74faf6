// Package walker produces the depth-first traversal of a source root that a
// backup run mirrors into its target.
package walker

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const GitIgnoreFile = ".gitignore"

// Entry is one file or directory below a source root.
type Entry struct {
	Path    string // absolute (or root-joined) path on disk
	RelPath string // slash-separated, relative to the root
	IsDir   bool
}

type Options struct {
	// RespectIgnoreFiles applies .gitignore files found in the tree,
	// .git/info/exclude at the root and IgnoreFileName.
	RespectIgnoreFiles bool
	// IgnoreFileName is an extra per-directory ignore file (e.g. ".backupignore").
	IgnoreFileName string
	// Prune, when set, is asked about every directory; returning true drops
	// the directory and everything below it.
	Prune func(e Entry) bool
}

// Walk yields every entry under root in lexical depth-first order. A
// directory is always yielded before its descendants; root itself is not
// yielded. Hidden entries are included. Errors are yielded in place and do
// not stop the walk.
//
// A root that is a symlink is followed and entry paths are reported below
// the resolved directory. Symlinks below the root are not descended into.
func Walk(root string, opts Options) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		w := &walk{root: resolveRoot(root), opts: opts, yield: yield}
		_ = filepath.WalkDir(w.root, w.visit)
	}
}

// resolveRoot returns the target of root when root is a symlink, and root
// unchanged otherwise. A broken link is left for WalkDir to report.
func resolveRoot(root string) string {
	info, err := os.Lstat(root)
	if err != nil || info.Mode()&fs.ModeSymlink == 0 {
		return root
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return root
	}
	return resolved
}

type walk struct {
	root    string
	opts    Options
	yield   func(Entry, error) bool
	rules   []ignoreRule
	stopped bool
}

func (w *walk) emit(e Entry, err error) error {
	if !w.yield(e, err) {
		w.stopped = true
		return fs.SkipAll
	}
	return nil
}

func (w *walk) visit(p string, d fs.DirEntry, err error) error {
	if w.stopped {
		return fs.SkipAll
	}
	if err != nil {
		return w.emit(Entry{Path: p}, err)
	}

	if p == w.root {
		if d.IsDir() && w.opts.RespectIgnoreFiles {
			if err := w.loadRules(p, ""); err != nil {
				return err
			}
		}
		return nil
	}

	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	rel = filepath.ToSlash(rel)

	isDir, ok := classify(p, d)
	if !ok {
		return nil
	}

	if w.opts.RespectIgnoreFiles && w.ignored(rel, isDir) {
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}

	entry := Entry{Path: p, RelPath: rel, IsDir: isDir}
	if isDir && w.opts.Prune != nil && w.opts.Prune(entry) {
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	}

	if err := w.emit(entry, nil); err != nil {
		return err
	}

	if d.IsDir() && w.opts.RespectIgnoreFiles {
		return w.loadRules(p, rel)
	}
	return nil
}

// classify resolves symlinks to the kind of their target. Only directories
// and regular files are reported.
func classify(p string, d fs.DirEntry) (isDir bool, ok bool) {
	switch {
	case d.IsDir():
		return true, true
	case d.Type().IsRegular():
		return false, true
	case d.Type()&fs.ModeSymlink != 0:
		info, err := os.Stat(p)
		if err != nil {
			return false, false
		}
		if info.IsDir() {
			return true, true
		}
		return false, info.Mode().IsRegular()
	default:
		return false, false
	}
}

type ignoreRule struct {
	base string
	gi   *gitignore.GitIgnore
}

func (w *walk) loadRules(dir, rel string) error {
	names := []string{GitIgnoreFile}
	if rel == "" {
		names = append(names, filepath.Join(".git", "info", "exclude"))
	}
	if w.opts.IgnoreFileName != "" && w.opts.IgnoreFileName != GitIgnoreFile {
		names = append(names, w.opts.IgnoreFileName)
	}

	for _, name := range names {
		gi, err := compileIgnoreFile(filepath.Join(dir, name))
		if err != nil {
			// WalkDir reports an unreadable directory on its own
			if errors.Is(err, fs.ErrPermission) && !readable(dir) {
				return nil
			}
			if emitErr := w.emit(Entry{Path: filepath.Join(dir, name)}, err); emitErr != nil {
				return emitErr
			}
			continue
		}
		if gi != nil {
			w.rules = append(w.rules, ignoreRule{base: rel, gi: gi})
		}
	}
	return nil
}

func readable(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func compileIgnoreFile(p string) (*gitignore.GitIgnore, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	return gitignore.CompileIgnoreLines(lines...), nil
}

// ignored drops rules from directories that are no longer ancestors of rel
// and checks what is left, deepest first.
func (w *walk) ignored(rel string, isDir bool) bool {
	parent := path.Dir(rel)
	if parent == "." {
		parent = ""
	}
	for len(w.rules) > 0 && !isAncestor(w.rules[len(w.rules)-1].base, parent) {
		w.rules = w.rules[:len(w.rules)-1]
	}

	for i := len(w.rules) - 1; i >= 0; i-- {
		r := w.rules[i]
		sub := rel
		if r.base != "" {
			sub = strings.TrimPrefix(rel, r.base+"/")
		}
		if r.gi.MatchesPath(sub) || (isDir && r.gi.MatchesPath(sub+"/")) {
			return true
		}
	}
	return false
}

func isAncestor(base, dir string) bool {
	return base == "" || base == dir || strings.HasPrefix(dir, base+"/")
}
