package process

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartAndStopReportsNotRunning(t *testing.T) {
	h := New("/bin/sleep", []string{"30"}, testLogger())

	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.IsRunning())

	require.NoError(t, h.Stop(2*time.Second))
	assert.False(t, h.IsRunning())
}

func TestExitedChannelFiresWhenProcessEndsOnItsOwn(t *testing.T) {
	h := New("/bin/sleep", []string{"0"}, testLogger())

	require.NoError(t, h.Start(context.Background()))

	select {
	case ev := <-h.Exited():
		assert.NoError(t, ev.Err)
	case <-time.After(3 * time.Second):
		t.Fatal("process did not report exit in time")
	}
}

func TestStartTwiceWithoutStopFails(t *testing.T) {
	h := New("/bin/sleep", []string{"30"}, testLogger())

	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(time.Second)

	err := h.Start(context.Background())
	assert.Error(t, err)
}

func TestStopOnNeverStartedHandleIsNoop(t *testing.T) {
	h := New("/bin/sleep", []string{"30"}, testLogger())
	assert.NoError(t, h.Stop(time.Second))
}
