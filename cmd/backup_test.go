package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/lupppig/dirbackup/internal/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// run executes a fresh command tree with no config file in reach.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	return executeCommand(newRootCmd(), append(args, "--no-color")...)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dirbackup.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func sampleSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "project")
	writeTree(t, src, map[string]string{
		"main.go":             "package main",
		"docs/readme.md":      "# readme",
		"node_modules/x/a.js": "x",
		"build/debug.log":     "log",
	})
	return src
}

func TestBackupCommand_Flags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"Missing Sources", []string{"backup", "--to", "/tmp/x"}},
		{"Missing Target", []string{"backup", "/tmp"}},
		{"Unknown Flag", []string{"backup", "/tmp", "--to", "/tmp/x", "--compress"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestBackupCommand_InvalidCollisionPolicy(t *testing.T) {
	_, err := run(t, "backup", t.TempDir(), "--to", t.TempDir(), "--on-collision", "merge")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestBackupCommand_MissingSource(t *testing.T) {
	_, err := run(t, "backup", filepath.Join(t.TempDir(), "nope"), "--to", t.TempDir())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestBackupCommand_CopiesTree(t *testing.T) {
	src := sampleSource(t)
	dst := t.TempDir()

	out, err := run(t, "backup", src, "--to", dst, "--exclude", "node_modules", "-e", "*.log", "--include-root")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully copied 2 files")

	assert.FileExists(t, filepath.Join(dst, "project", "main.go"))
	assert.FileExists(t, filepath.Join(dst, "project", "docs", "readme.md"))
	assert.NoDirExists(t, filepath.Join(dst, "project", "node_modules"))
	assert.NoFileExists(t, filepath.Join(dst, "project", "build", "debug.log"))
}

func TestBackupCommand_SkipTwice(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a": "a", "b/c": "c"})
	dst := t.TempDir()

	_, err := run(t, "backup", src, "--to", dst, "--on-collision", "skip")
	require.NoError(t, err)

	out, err := run(t, "backup", src, "--to", dst, "--on-collision", "skip")
	require.NoError(t, err)
	assert.Contains(t, out, "Copied 0 files, skipped 2")
}

func TestBackupCommand_Verify(t *testing.T) {
	src := sampleSource(t)
	dst := t.TempDir()

	out, err := run(t, "backup", src, "--to", dst, "--exclude", "node_modules", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 3 files")
}

func TestBackupCommand_ConfigDefaults(t *testing.T) {
	src := sampleSource(t)
	dst := t.TempDir()
	cfg := writeConfig(t, `
defaults:
  blacklist: ["node_modules", "build"]
  include_source_root: true
`)

	out, err := run(t, "backup", src, "--to", dst, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully copied 2 files")
	assert.FileExists(t, filepath.Join(dst, "project", "main.go"))
	assert.NoDirExists(t, filepath.Join(dst, "project", "build"))

	// a flag wins over the config default
	dst2 := t.TempDir()
	_, err = run(t, "backup", src, "--to", dst2, "--config", cfg, "--include-root=false")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dst2, "main.go"))
}

func TestBackupCommand_FailedFiles(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a/f": "f"})
	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"a": "blocker"})

	out, err := run(t, "backup", src, "--to", dst)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeResource))
	assert.Contains(t, out, "Copied 0 files with")
}

func TestVerifyCommand_Mismatch(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "original", "b.txt": "b"})
	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"a.txt": "tampered", "b.txt": "b"})

	out, err := run(t, "verify", src, "--to", dst)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeIntegrity))
	assert.Contains(t, out, "a.txt: checksum mismatch")
}

func TestVerifyCommand_OK(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "same", "skip.log": "x"})
	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"a.txt": "same"})

	out, err := run(t, "verify", src, "--to", dst, "--exclude", "*.log")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 1 files")
}

func TestRunCommand(t *testing.T) {
	src := sampleSource(t)
	dst := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(`
defaults:
  blacklist: ["node_modules"]
jobs:
  - id: projects
    sources: [%q]
    target: %q
    blacklist: ["*.log"]
`, src, dst))

	out, err := run(t, "run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 1 jobs")
	assert.FileExists(t, filepath.Join(dst, "main.go"))
	assert.NoFileExists(t, filepath.Join(dst, "build", "debug.log"))
	assert.NoDirExists(t, filepath.Join(dst, "node_modules"))

	_, err = run(t, "run", "--config", cfg, "--job", "missing")
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
}

func TestRunCommand_FailingJob(t *testing.T) {
	dst := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf(`
jobs:
  - id: gone
    sources: [%q]
    target: %q
`, filepath.Join(dst, "missing"), dst))

	_, err := run(t, "run", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 jobs failed")
}

func TestRunCommand_NoJobs(t *testing.T) {
	_, err := run(t, "run")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestScheduleListCommand(t *testing.T) {
	cfg := writeConfig(t, fmt.Sprintf(`
jobs:
  - id: nightly
    sources: [%q]
    target: %q
    schedule: "@daily"
  - id: manual
    sources: [%q]
    target: %q
`, t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir()))

	out, err := run(t, "schedule", "list", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "@daily")
	assert.NotContains(t, out, "manual")
}

func TestScheduleCommand_NoScheduledJobs(t *testing.T) {
	_, err := run(t, "schedule")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}

func TestDoctorCommand(t *testing.T) {
	good := writeConfig(t, fmt.Sprintf(`
jobs:
  - id: ok
    sources: [%q]
    target: %q
    schedule: "6h"
`, t.TempDir(), filepath.Join(t.TempDir(), "new", "dir")))

	out, err := run(t, "doctor", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "all jobs are ready")

	bad := writeConfig(t, fmt.Sprintf(`
jobs:
  - id: broken
    sources: [%q]
    target: %q
    schedule: "every tuesday"
`, filepath.Join(t.TempDir(), "missing"), t.TempDir()))

	out, err = run(t, "doctor", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, out, "[ ] source")
	assert.Contains(t, out, `[ ] schedule "every tuesday"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dirbackup")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}
