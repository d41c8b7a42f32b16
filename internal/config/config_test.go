package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, Init(path))
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Default().Quota, cfg.Quota)
	assert.Equal(t, "sonnet", cfg.Assistant.Model)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Init(path))
	assert.Error(t, Init(path))
}

func TestLoadParsesTemplateOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[quota]
window_hours = 5
safety_margin = 0.15

[daemon]
poll_interval = 60

[auto_tasks]
enabled = true
work_dir = "."

[auto_tasks.run_tests]
enabled = false

[auto_tasks.security_audit]
interval_hours = 72
min_commits = 3
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Contains(t, cfg.AutoTasks.Templates, "run_tests")
	require.NotNil(t, cfg.AutoTasks.Templates["run_tests"].Enabled)
	assert.False(t, *cfg.AutoTasks.Templates["run_tests"].Enabled)

	require.Contains(t, cfg.AutoTasks.Templates, "security_audit")
	sa := cfg.AutoTasks.Templates["security_audit"]
	require.NotNil(t, sa.IntervalHours)
	assert.Equal(t, 72, *sa.IntervalHours)
	require.NotNil(t, sa.MinCommits)
	assert.Equal(t, 3, *sa.MinCommits)
}

func TestValidateRejectsBadWindowHours(t *testing.T) {
	cfg := Default()
	cfg.Quota.WindowHours = 0
	assert.Error(t, cfg.Validate())
}

func TestResolvePathsLayout(t *testing.T) {
	paths := ResolvePaths("/tmp/wm")
	assert.Equal(t, "/tmp/wm/config.toml", paths.ConfigFile)
	assert.Equal(t, "/tmp/wm/tasks.db", paths.DBFile)
	assert.Equal(t, "/tmp/wm/wise-magpie.pid", paths.PIDFile)
	assert.Equal(t, "/tmp/wm/control.sock", paths.ControlSock)
}
