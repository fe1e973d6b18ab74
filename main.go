// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ultrasonic/cmd"
	"ultrasonic/internal/audioio"
	"ultrasonic/internal/config"
	"ultrasonic/internal/facade"
	applog "ultrasonic/internal/log"
	"ultrasonic/internal/manager"
	"ultrasonic/internal/registry"
	"ultrasonic/internal/tui"
)

// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Parse command line arguments
//   - Initialize PortAudio
//   - Execute one-off commands that exit (e.g., device listing)
//   - Load configuration, open the device registry
//
// 2. Concurrent Phase (Hot Path):
//   - Refresh the device registry from whatever PortAudio currently sees
//   - Start the device manager and HTTP/SSE façade
//   - Optionally run the operator console in the foreground
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop every running pipeline and persist the registry
//   - Terminate PortAudio
func main() {
	if err := run(); err != nil {
		applog.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	// ------------------------------------------------------------------------
	// STARTUP (Cold Path)
	// ------------------------------------------------------------------------

	opts, err := cmd.ParseArgs()
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}

	if err := audioio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer func() {
		applog.Debugf("terminating portaudio")
		if err := audioio.Terminate(); err != nil {
			applog.Warnf("terminate portaudio: %v", err)
		}
	}()

	if opts.Command == cmd.CommandList {
		return executeList()
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applog.SetLevel(cfg.LogLevel)
	if cfg.Debug {
		applog.Infof("debug mode enabled")
	}

	reg := registry.NewDeviceRegistry(cfg.Registry.Path, cfg.Registry.StaleAfterScans)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load device registry: %w", err)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	mgr := manager.New(reg, cfg.Audio, cfg.Stream)
	if _, err := mgr.RefreshDevices(); err != nil {
		applog.Warnf("initial device scan: %v", err)
	}

	srv := facade.New(mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() {
		applog.Infof("facade: listening on %s", cfg.Server.ListenAddr)
		serveErrCh <- srv.Run(ctx, cfg.Server.ListenAddr)
	}()

	if opts.Command == cmd.CommandConsole {
		if err := tui.StartConsole(mgr); err != nil {
			applog.Warnf("console exited: %v", err)
		}
		cancel()
	} else {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		applog.Infof("waiting for interrupt signal (ctrl+c)...")
		select {
		case <-quit:
			applog.Infof("shutdown signal received")
		case err := <-serveErrCh:
			if err != nil {
				applog.Errorf("facade exited: %v", err)
			}
		}
		cancel()
	}

	// --- Shutdown Phase (Cold Path) ---

	<-serveErrCh
	mgr.StopAll()
	if err := mgr.Persist(); err != nil {
		applog.Warnf("persist device registry: %v", err)
	}
	applog.Infof("shutdown complete")
	return nil
}

// executeList enumerates audio input devices and prints them; it assumes
// PortAudio is already initialized by the caller.
func executeList() error {
	devices, err := audioio.EnumerateDevices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No audio input devices found.")
		return nil
	}

	fmt.Printf("\nAvailable Audio Input Devices (%d found)\n\n", len(devices))
	for _, d := range devices {
		defaultMarker := ""
		if d.IsDefaultInput {
			defaultMarker = " (Default Input)"
		}
		fmt.Printf("[%d] %s%s\n", d.Index, d.Name, defaultMarker)
		fmt.Printf("    Host API: %s\n", d.HostApiName)
		fmt.Printf("    Input Channels: %d\n", d.MaxInputChannels)
		fmt.Printf("    Default Sample Rate: %.0f Hz\n\n", d.DefaultSampleRate)
	}
	return nil
}
