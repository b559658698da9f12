package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  type: sqlite
  local_path: /tmp/impact.sqlite
analysis:
  source_dirs: [core/src/main/java, api/src/main/java]
  test_dirs: [core/src/test/java]
  branch: release-1
  workers: 3
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/tmp/impact.sqlite", cfg.Storage.LocalPath)
	assert.Equal(t, []string{"core/src/main/java", "api/src/main/java"}, cfg.Analysis.SourceDirs)
	assert.Equal(t, "release-1", cfg.Analysis.Branch)
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  type: bolt\n"), 0644))

	t.Setenv("TIMPACT_WORKERS", "7")
	t.Setenv("TIMPACT_TEST_DIRS", "a/test, b/test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Analysis.Workers)
	assert.Equal(t, []string{"a/test", "b/test"}, cfg.Analysis.TestDirs)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Validate().HasErrors())

	cfg.Storage.Type = "postgres"
	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "postgres_dsn")

	cfg.Storage.Type = "redis"
	assert.Error(t, cfg.ValidateOrError())
}

func TestValidate_ClampsWorkers(t *testing.T) {
	cfg := Default()
	cfg.Analysis.Workers = 0

	result := cfg.Validate()

	assert.False(t, result.HasErrors())
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, 1, cfg.Analysis.Workers)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Analysis.Branch = "feature-x"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "feature-x", loaded.Analysis.Branch)
	assert.Equal(t, cfg.Storage.Type, loaded.Storage.Type)
}
