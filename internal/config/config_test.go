package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().DataDir, cfg.DataDir)
	require.Equal(t, 5, cfg.JobConcurrency)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "dataDir: /tmp/mcp\nlistenAddr: :8081\njobConcurrency: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/mcp", cfg.DataDir)
	require.Equal(t, ":8081", cfg.ListenAddr)
	require.Equal(t, 8, cfg.JobConcurrency)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().DataDir, cfg.DataDir)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: /tmp/mcp\n"), 0o644))

	t.Setenv("MCP_SUPERVISOR_DATA_DIR", "/tmp/override")
	t.Setenv("MCP_SUPERVISOR_JOB_RETENTION", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/override", cfg.DataDir)
	require.Equal(t, time.Hour, cfg.JobRetention)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("MCP_SUPERVISOR_JOB_RETENTION", "not-a-duration")
	_, err := Load("")
	require.Error(t, err)
}
