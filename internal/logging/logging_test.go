package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerWritesColorizedLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "")
	require.NoError(t, err)

	logger.Info("engine started", "pid", 1234)

	output := buf.String()
	assert.Contains(t, output, "engine started")
	assert.Contains(t, output, "pid=1234")
}

func TestNewWritesJSONFileWhenLogDirProvided(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, err := New(&buf, dir)
	require.NoError(t, err)

	logger.Warn("restart attempted", "attempt", 1)

	data, err := os.ReadFile(filepath.Join(dir, "supervisor.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "restart attempted"))
}
