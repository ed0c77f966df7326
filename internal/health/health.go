// Package health watches the running engine process and restarts it
// with bounded exponential backoff on crash. Restarter's sleep step is
// an injected function rather than a direct time.Sleep call, the same
// seam the teacher's security.Scanner exposes via SetExecCommand so
// tests can swap in a fake without waiting on a real clock.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"burncloud-aria2/internal/aerrors"
)

// Restarter owns the crash/backoff/restart loop for one supervised
// process. Callers provide a checkFn invoked each tick to test process
// liveness, a probeFn issuing the engine's lightweight liveness RPC
// when the process is up, and a restartFn invoked whenever checkFn
// reports the process is down.
type Restarter struct {
	checkFn   func() bool
	probeFn   func(ctx context.Context) error
	restartFn func(ctx context.Context) error
	sleepFn   func(d time.Duration)

	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger

	restartCount int
}

// backoffSchedule is the bounded exponential sequence used between
// restart attempts: 1, 2, 4, 8, 16, 32, 60, 60, ... seconds.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
	60 * time.Second,
}

func backoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}

// New builds a Restarter. checkFn reports whether the child process is
// currently alive; probeFn issues the engine's liveness RPC when the
// process is up, and a successful probe resets the restart counter so
// sustained health restores the full restart budget; restartFn performs
// a full restart (re-provision is not repeated, only process start).
func New(checkFn func() bool, probeFn func(ctx context.Context) error, restartFn func(ctx context.Context) error, maxAttempts int, interval time.Duration, logger *slog.Logger) *Restarter {
	return &Restarter{
		checkFn:     checkFn,
		probeFn:     probeFn,
		restartFn:   restartFn,
		sleepFn:     time.Sleep,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
	}
}

// SetSleepFunc overrides the backoff delay function, letting tests
// observe the backoff sequence without blocking on a real clock.
func (r *Restarter) SetSleepFunc(fn func(d time.Duration)) {
	r.sleepFn = fn
}

// RestartCount returns the restart counter: the number of crashes
// detected since the last successful liveness probe. When Run returns
// ErrRestartLimitExceeded it is maxAttempts+1, one more than the number
// of restarts actually attempted.
func (r *Restarter) RestartCount() int {
	return r.restartCount
}

// Run blocks, ticking every interval and restarting the process on
// crash, until ctx is cancelled or the restart limit is exceeded.
func (r *Restarter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.checkFn() {
				if r.probeFn != nil {
					if err := r.probeFn(ctx); err == nil {
						if r.restartCount != 0 {
							r.logger.Info("engine liveness probe succeeded, resetting restart budget", "previous_attempts", r.restartCount)
						}
						r.restartCount = 0
					}
					// A failed probe is not itself a crash signal: the
					// engine may be mid-startup. The next tick's
					// checkFn catches a genuine crash.
				}
				continue
			}

			r.restartCount++
			if r.restartCount > r.maxAttempts {
				r.logger.Error("restart limit exceeded, giving up", "attempts", r.restartCount)
				return aerrors.ErrRestartLimitExceeded
			}

			delay := backoffFor(r.restartCount - 1)
			r.logger.Warn("engine process down, restarting after backoff", "attempt", r.restartCount, "delay", delay)
			r.sleepFn(delay)

			if err := r.restartFn(ctx); err != nil {
				r.logger.Error("restart attempt failed", "error", err)
				continue
			}
			r.logger.Info("engine process restarted", "attempt", r.restartCount)
		}
	}
}

// ProcessRunning reports whether a process with the given pid is alive
// according to gopsutil, the same library the teacher's
// internal/filesystem.Allocator uses for disk stats. It is a
// supplemental, non-authoritative diagnostic signal: Run never calls it,
// and checkFn's verdict remains the sole source of truth for whether a
// restart is needed.
func ProcessRunning(pid int32) bool {
	exists, err := process.PidExists(pid)
	if err != nil {
		return false
	}
	return exists
}
