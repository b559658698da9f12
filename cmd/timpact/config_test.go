package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/timpact/internal/config"
)

func TestConfigKeysRoundTrip(t *testing.T) {
	c := config.Default()

	require.NoError(t, setConfigValue(c, "analysis.source_dirs", "src/main/java, lib ,"))
	v, ok := getConfigValue(c, "analysis.source_dirs")
	require.True(t, ok)
	assert.Equal(t, "src/main/java,lib", v)

	require.NoError(t, setConfigValue(c, "analysis.commit_dirty", "true"))
	assert.True(t, c.Analysis.CommitDirty)
	assert.Error(t, setConfigValue(c, "analysis.commit_dirty", "maybe"))

	require.NoError(t, setConfigValue(c, "analysis.workers", "3"))
	assert.Equal(t, 3, c.Analysis.Workers)
	assert.Error(t, setConfigValue(c, "analysis.workers", "many"))

	assert.Error(t, setConfigValue(c, "api.key", "x"))
	_, ok = getConfigValue(c, "api.key")
	assert.False(t, ok)

	for _, key := range configKeys {
		_, ok := getConfigValue(c, key)
		assert.True(t, ok, key)
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "", maskDSN(""))
	assert.Equal(t, "postgres://***:***@db:5432/impact", maskDSN("postgres://ci:secret@db:5432/impact"))
	assert.Equal(t, "***", maskDSN("host=db password=secret"))
}
