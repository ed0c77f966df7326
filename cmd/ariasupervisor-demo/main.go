// Command ariasupervisor-demo wires configuration, logging, the
// supervisor, the download facade, and the optional control surface
// together into a runnable process. Its flag parsing and OS-signal
// driven shutdown are adapted from the teacher's main.go and
// internal/core.WaitForSignals; everything Wails/systray-specific there
// has no equivalent here, since this module has no GUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"burncloud-aria2/internal/audit"
	"burncloud-aria2/internal/config"
	"burncloud-aria2/internal/controlapi"
	"burncloud-aria2/internal/facade"
	"burncloud-aria2/internal/logging"
	"burncloud-aria2/internal/platform"
	"burncloud-aria2/internal/supervisor"
)

func main() {
	controlPort := flag.Int("control-port", 6801, "port for the local control API")
	primaryURL := flag.String("primary-url", "", "primary download URL for the engine binary archive")
	mirrorURL := flag.String("mirror-url", "", "mirror download URL for the engine binary archive")
	downloadDir := flag.String("download-dir", "", "directory the engine writes downloads into")
	flag.Parse()

	installDir := platform.InstallDir()

	logger, err := logging.New(os.Stdout, filepath.Join(installDir, "logs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "initialize logger:", err)
		os.Exit(1)
	}

	dlDir := *downloadDir
	if dlDir == "" {
		dlDir = filepath.Join(installDir, "downloads")
	}

	cfg := config.DefaultConfig(dlDir)
	cfg.SessionFile = filepath.Join(installDir, "session.aria2")

	opts := supervisor.Options{
		InstallDir:     installDir,
		ExecutablePath: platform.ExecutablePath(installDir),
		PrimaryURL:     *primaryURL,
		MirrorURL:      *mirrorURL,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := supervisor.Start(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("supervisor failed to start", "error", err)
		os.Exit(1)
	}

	dl := facade.New(sup.RpcClient(), &http.Client{Timeout: cfg.HttpTimeout})

	auditLogger := audit.New(filepath.Join(installDir, "logs"), logger)
	defer auditLogger.Close()

	controlServer := controlapi.New(dl, auditLogger, cfg.RpcSecret)
	go func() {
		if err := controlServer.Start(*controlPort); err != nil {
			logger.Error("control server stopped", "error", err)
		}
	}()

	logger.Info("ariasupervisor-demo running", "control_port", *controlPort, "rpc_port", cfg.RpcPort)

	waitForSignal()
	logger.Info("shutdown signal received")
	cancel()
	if err := sup.Stop(); err != nil {
		logger.Error("error stopping supervisor", "error", err)
	}
}

// waitForSignal mirrors the teacher's internal/core.WaitForSignals,
// blocking the caller until os.Interrupt or SIGTERM arrives.
func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}
