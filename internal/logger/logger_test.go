package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscardsUntilInitialized(t *testing.T) {
	require.NoError(t, Close())
	Infof("dropped %d", 1)
}

func TestInitWriterWritesJSON(t *testing.T) {
	t.Cleanup(func() { _ = Close() })
	var buf bytes.Buffer
	InitWriter(&buf)

	Warnf("cache %s unavailable", "redis")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "cache redis unavailable", line["message"])
	assert.Contains(t, line, "time")
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() {
		_ = Close()
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	})
	var buf bytes.Buffer
	InitWriter(&buf)

	require.NoError(t, SetLevel("warn"))
	Infof("hidden")
	Errorf("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, SetLevel("loud"))
}

func TestInitCreatesFile(t *testing.T) {
	t.Cleanup(func() { _ = Close() })
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	require.NoError(t, Init(path))
	Infof("hello")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(envLogPath, "/tmp/x.log")
	assert.Equal(t, "/tmp/x.log", PathFromEnv())
}
