package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestSetup_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.log")

	l, closer, err := Setup("info", "json", path)
	require.NoError(t, err)
	l.Info().Str("device", "d1").Msg("Asset spawned")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"device":"d1"`)
	assert.Contains(t, string(data), "Asset spawned")
}

func TestSetup_BadFile(t *testing.T) {
	_, _, err := Setup("info", "console", filepath.Join(t.TempDir(), "missing", "swarm.log"))
	assert.Error(t, err)
}
