package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "timpact.log")

	logger, err := NewLogger(Config{Level: "debug", OutputFile: path, JSONFormat: true})
	require.NoError(t, err)

	logger.WithField("suite", "OrderTest").Debug("selected")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"suite":"OrderTest"`)
	assert.Contains(t, string(data), `"level":"debug"`)
}

func TestNewLogger_RotatesOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timpact.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0644))

	logger, err := NewLogger(Config{OutputFile: path, MaxSize: 32})
	require.NoError(t, err)
	defer logger.Close()

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, level)

	level, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}
