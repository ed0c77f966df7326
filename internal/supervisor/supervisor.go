// Package supervisor wires PlatformPaths, BinaryProvisioner,
// PortArbiter, ProcessHandle, and HealthMonitor into the single startup
// sequence a caller needs to get a running, reachable engine. Its
// staged start/stop shape is grounded on the teacher's
// internal/engine.NewEngine / Shutdown pair, which also assembles
// several subsystems in order and tears them down in reverse.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"burncloud-aria2/internal/aerrors"
	"burncloud-aria2/internal/config"
	"burncloud-aria2/internal/health"
	"burncloud-aria2/internal/platform"
	"burncloud-aria2/internal/portarbiter"
	"burncloud-aria2/internal/process"
	"burncloud-aria2/internal/provisioner"
	"burncloud-aria2/internal/rpc"
)

// Supervisor owns the lifecycle of one engine instance: its process and
// the monitor that restarts it on crash.
type Supervisor struct {
	cfg       *config.SupervisorConfig
	handle    *process.Handle
	rpcClient *rpc.Client
	restarter *health.Restarter
	logger    *slog.Logger

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// Options carries the pieces Start needs beyond SupervisorConfig: the
// binary's download sources and where on disk to look for/place it.
type Options struct {
	InstallDir     string
	ExecutablePath string
	PrimaryURL     string
	MirrorURL      string
}

// Start runs the full provisioning and readiness sequence described by
// the governing design: resolve the binary, provision it if absent,
// arbitrate a port, spawn the process, poll for readiness, then start
// the health monitor. On any failure prior to the monitor starting, any
// partially-started process is torn down before the error is returned.
func Start(ctx context.Context, cfg *config.SupervisorConfig, opts Options, logger *slog.Logger) (*Supervisor, error) {
	if err := platform.EnsureDirectory(opts.InstallDir); err != nil {
		return nil, err
	}

	prov := provisioner.New(cfg.HttpTimeout, logger)
	if !prov.Exists(opts.ExecutablePath) {
		if err := prov.Provision(opts.InstallDir, opts.ExecutablePath, opts.PrimaryURL, opts.MirrorURL, cfg.BinaryChecksumSHA256); err != nil {
			return nil, err
		}
	}

	if err := platform.EnsureDirectory(cfg.DownloadDir); err != nil {
		return nil, err
	}

	port, err := portarbiter.FindAvailable(cfg.RpcPort)
	if err != nil {
		return nil, err
	}
	cfg.RpcPort = port

	args := processArgs(cfg)
	handle := process.New(opts.ExecutablePath, args, logger)
	if err := handle.Start(ctx); err != nil {
		return nil, err
	}

	rpcClient := rpc.New("127.0.0.1", cfg.RpcPort, cfg.RpcSecret, &http.Client{Timeout: cfg.HttpTimeout}, logger)

	if err := waitForReady(ctx, rpcClient, handle, cfg.ReadinessTimeout, cfg.ReadinessPollInterval); err != nil {
		_ = handle.Stop(5 * time.Second)
		return nil, err
	}

	s := &Supervisor{
		cfg:       cfg,
		handle:    handle,
		rpcClient: rpcClient,
		logger:    logger,
	}

	s.startMonitor(cfg)

	return s, nil
}

// processArgs builds the engine's command-line argument list per the
// documented external interface contract.
func processArgs(cfg *config.SupervisorConfig) []string {
	args := []string{
		"--enable-rpc",
		fmt.Sprintf("--rpc-listen-port=%d", cfg.RpcPort),
		fmt.Sprintf("--rpc-secret=%s", cfg.RpcSecret),
		fmt.Sprintf("--dir=%s", cfg.DownloadDir),
		"--continue",
	}
	if cfg.SessionFile != "" {
		args = append(args,
			fmt.Sprintf("--save-session=%s", cfg.SessionFile),
			"--save-session-interval=60",
		)
		if provisionerExists(cfg.SessionFile) {
			args = append(args, fmt.Sprintf("--input-file=%s", cfg.SessionFile))
		}
	}
	return args
}

func waitForReady(ctx context.Context, client *rpc.Client, handle *process.Handle, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if err := client.Ping(ctx); err == nil {
			return nil
		}

		if !handle.IsRunning() {
			return aerrors.ErrProcessManagement
		}
		if time.Now().After(deadline) {
			return aerrors.ErrDaemonUnavailable
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) startMonitor(cfg *config.SupervisorConfig) {
	monitorCtx, cancel := context.WithCancel(context.Background())
	s.monitorCancel = cancel
	s.monitorDone = make(chan struct{})

	s.restarter = health.New(
		s.handle.IsRunning,
		s.rpcClient.Ping,
		func(ctx context.Context) error { return s.handle.Start(ctx) },
		cfg.MaxRestartAttempts,
		cfg.HealthCheckInterval,
		s.logger,
	)

	go func() {
		defer close(s.monitorDone)
		if err := s.restarter.Run(monitorCtx); err != nil {
			s.logger.Error("health monitor exited", "error", err)
		}
	}()
}

// Stop raises the monitor's shutdown signal and awaits process
// termination.
func (s *Supervisor) Stop() error {
	if s.monitorCancel != nil {
		s.monitorCancel()
		<-s.monitorDone
	}
	return s.handle.Stop(10 * time.Second)
}

// IsHealthy reports whether the supervised process is currently running.
func (s *Supervisor) IsHealthy() bool {
	return s.handle.IsRunning()
}

// RpcClient returns the client bound to this supervisor's engine instance.
func (s *Supervisor) RpcClient() *rpc.Client {
	return s.rpcClient
}

func provisionerExists(path string) bool {
	p := provisioner.New(0, slog.Default())
	return p.Exists(path)
}
