// Package process owns the single child aria2c invocation: starting it,
// watching it exit, and tearing it down. The start/monitor/stop shape is
// grounded on cuemby-warren's pkg/embedded.ContainerdManager, which
// supervises an external daemon binary the same way; unlike that
// manager, Handle does not restart on crash itself, since the governing
// supervisor/health-monitor layer owns restart policy and backoff.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"burncloud-aria2/internal/aerrors"
)

// ExitEvent is sent on Handle's Exited channel whenever the child
// process terminates, whether cleanly or not.
type ExitEvent struct {
	Err error
}

// Handle wraps one running (or not-yet-started) aria2c child process.
type Handle struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool

	binaryPath string
	args       []string
	logger     *slog.Logger

	exited chan ExitEvent
}

// New builds a Handle for the given binary and argument list. Start
// must be called before the process is usable.
func New(binaryPath string, args []string, logger *slog.Logger) *Handle {
	return &Handle{
		binaryPath: binaryPath,
		args:       args,
		logger:     logger,
		exited:     make(chan ExitEvent, 1),
	}
}

// Start launches the child process, wiring its stdout/stderr through
// logWriter so subprocess chatter ends up in the module's own logger,
// then begins a background wait that reports on Exited.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd != nil {
		return aerrors.NewProcessError("start", fmt.Errorf("process already started"))
	}

	cmd := exec.CommandContext(ctx, h.binaryPath, h.args...)
	cmd.Stdout = &logWriter{logger: h.logger, level: slog.LevelInfo}
	cmd.Stderr = &logWriter{logger: h.logger, level: slog.LevelWarn}

	if err := cmd.Start(); err != nil {
		return aerrors.NewProcessError("spawn", err)
	}
	h.cmd = cmd
	h.running = true

	h.exited = make(chan ExitEvent, 1)
	go h.monitor()

	h.logger.Info("engine process started", "pid", cmd.Process.Pid)
	return nil
}

// monitor blocks on cmd.Wait and publishes the result once.
func (h *Handle) monitor() {
	h.mu.Lock()
	cmd := h.cmd
	ch := h.exited
	h.mu.Unlock()

	if cmd == nil {
		return
	}
	err := cmd.Wait()

	h.mu.Lock()
	if h.cmd == cmd {
		h.running = false
	}
	h.mu.Unlock()

	ch <- ExitEvent{Err: err}
}

// Exited returns the channel the monitor goroutine reports on. A value
// arrives exactly once per Start call.
func (h *Handle) Exited() <-chan ExitEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// IsRunning reports whether the child is currently believed to be
// alive. It is non-blocking: the verdict comes from the exit state the
// background monitor last observed, not a fresh syscall. If the child
// has exited, the process slot is cleared.
func (h *Handle) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil && !h.running {
		h.cmd = nil
	}
	return h.cmd != nil && h.running
}

// Stop asks the process to exit gracefully via SIGTERM, escalating to
// SIGKILL if it has not exited within grace.
func (h *Handle) Stop(grace time.Duration) error {
	h.mu.Lock()
	cmd := h.cmd
	ch := h.exited
	h.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	h.logger.Info("stopping engine process", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		h.logger.Warn("failed to send SIGTERM", "error", err)
	}

	select {
	case <-time.After(grace):
		h.logger.Warn("engine did not stop gracefully, killing")
		if err := cmd.Process.Kill(); err != nil {
			return aerrors.NewProcessError("kill", err)
		}
		<-ch
	case <-ch:
	}

	h.mu.Lock()
	h.cmd = nil
	h.running = false
	h.mu.Unlock()

	h.logger.Info("engine process stopped")
	return nil
}

// logWriter adapts a subprocess stdout/stderr stream onto a slog.Logger.
type logWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (lw *logWriter) Write(p []byte) (int, error) {
	lw.logger.Log(context.Background(), lw.level, "engine output", "line", string(p))
	return len(p), nil
}
