package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) {
	t.Helper()
	set(nil)
	t.Cleanup(func() { set(nil) })
}

func TestGetConfig_BeforeInitialize(t *testing.T) {
	reset(t)

	cfg := GetConfig()
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, "overwrite", cfg.Defaults.CollisionPolicy)
}

func TestInitialize_DefaultsAndEnv(t *testing.T) {
	reset(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DIRBACKUP_MAX_CONCURRENT", "3")
	t.Setenv("DIRBACKUP_NO_COLOR", "true")
	t.Setenv("DIRBACKUP_DEFAULTS_COLLISION_POLICY", "rename")

	err := Initialize("") // no file in the search paths
	require.NoError(t, err)

	cfg := GetConfig()
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "rename", cfg.Defaults.CollisionPolicy)
}

func TestInitialize_YamlFile(t *testing.T) {
	reset(t)
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "dirbackup.yaml")

	yamlContent := `
log_json: true
max_concurrent: 2
defaults:
  blacklist: ["node_modules", ".DS_Store"]
  respect_ignore_files: true
  collision_policy: skip
notifications:
  slack:
    webhook_url: "https://hooks.slack.test/abc"
  webhooks:
    - url: "https://example.test/hook"
      method: PUT
      headers:
        X-Token: secret
jobs:
  - id: "projects"
    sources: ["/home/me/projects", "/home/me/notes.txt"]
    target: "/mnt/backup"
    blacklist: ["*.tmp"]
    include_source_root: true
    schedule: "@daily"
    retries: 2
    retry_delay: "1m"
`
	err := os.WriteFile(configFile, []byte(yamlContent), 0644)
	require.NoError(t, err)

	err = Initialize(configFile)
	require.NoError(t, err)

	cfg := GetConfig()
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, []string{"node_modules", ".DS_Store"}, cfg.Defaults.Blacklist)
	assert.Equal(t, "https://hooks.slack.test/abc", cfg.Notifications.Slack.WebhookURL)
	require.Len(t, cfg.Notifications.Webhooks, 1)
	assert.Equal(t, "PUT", cfg.Notifications.Webhooks[0].Method)
	assert.Equal(t, "secret", cfg.Notifications.Webhooks[0].Headers["x-token"])

	require.Len(t, cfg.Jobs, 1)
	job, ok := cfg.Job("projects")
	require.True(t, ok)
	assert.Equal(t, []string{"/home/me/projects", "/home/me/notes.txt"}, job.Sources)
	assert.Equal(t, []string{"node_modules", ".DS_Store", "*.tmp"}, job.Blacklist)
	assert.True(t, *job.RespectIgnoreFiles)
	assert.True(t, *job.IncludeSourceRoot)
	assert.Equal(t, "skip", job.CollisionPolicy)
	assert.Equal(t, "@daily", job.Schedule)
	assert.Equal(t, 2, job.Retries)

	_, ok = cfg.Job("missing")
	assert.False(t, ok)
}

func TestInitialize_MissingExplicitFile(t *testing.T) {
	reset(t)
	err := Initialize(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestJobConfig_WithDefaults(t *testing.T) {
	off := false
	job := JobConfig{
		ID:                 "j",
		RespectIgnoreFiles: &off,
		Blacklist:          []string{"b"},
	}
	d := Defaults{
		Blacklist:          []string{"a"},
		RespectIgnoreFiles: true,
		IncludeSourceRoot:  true,
		IgnoreFile:         ".backupignore",
		CollisionPolicy:    "rename",
	}

	got := job.WithDefaults(d)
	assert.Equal(t, []string{"a", "b"}, got.Blacklist)
	assert.False(t, *got.RespectIgnoreFiles)
	assert.True(t, *got.IncludeSourceRoot)
	assert.Equal(t, ".backupignore", got.IgnoreFile)
	assert.Equal(t, "rename", got.CollisionPolicy)

	// the defaults slice is not aliased
	got.Blacklist[0] = "changed"
	assert.Equal(t, []string{"a"}, d.Blacklist)
}

func TestInitialize_HotReload(t *testing.T) {
	reset(t)
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "dirbackup.yaml")

	err := os.WriteFile(configFile, []byte(`max_concurrent: 4`), 0644)
	require.NoError(t, err)

	err = Initialize(configFile)
	require.NoError(t, err)

	assert.Equal(t, 4, GetConfig().MaxConcurrent)

	err = os.WriteFile(configFile, []byte(`max_concurrent: 10`), 0644)
	require.NoError(t, err)

	// Wait for fsnotify to pick up change
	assert.Eventually(t, func() bool {
		return GetConfig().MaxConcurrent == 10
	}, 2*time.Second, 20*time.Millisecond)
}
