// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"sync"
	"time"

	applog "ultrasonic/internal/log"
)

// ConfigError marks a DevicePipeline.Start failure as permanent: the
// configuration itself is invalid (a bad FFT size, an unknown window
// kind) rather than a transient device problem, so the Supervisor should
// not retry it.
type ConfigError struct{ err error }

func (e *ConfigError) Error() string { return e.err.Error() }
func (e *ConfigError) Unwrap() error { return e.err }

// restartBackoff is spec.md §4.6's fixed auto-restart schedule: retry
// after 100ms, then 500ms, then settle at a 2s cadence for any further
// attempts, mirroring the cooldown-step shape of the teacher's
// AdaptiveFFTParams (internal/analysis/adaptive_fft.go) applied to restart
// timing instead of parameter adaptation.
var restartBackoff = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
}

// Supervisor runs a DevicePipeline and retries Start with exponential
// backoff whenever it fails with what looks like a transient I/O error — a
// device temporarily unavailable or busy. It does not retry configuration
// errors (a bad FFT size, an invalid window kind): those are permanent
// until the config changes, so retrying them would just spin. Once the
// pipeline is running, the supervisor starts it again if it leaves Running
// without Shutdown having been called (for example after a direct Stop).
// The capture loop does not detect a stream that drops out mid-run, so
// such a dropout does not trigger a restart.
type Supervisor struct {
	pipeline *DevicePipeline

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewSupervisor wraps pipeline with auto-restart supervision.
func NewSupervisor(p *DevicePipeline) *Supervisor {
	return &Supervisor{pipeline: p}
}

// Run starts the pipeline and supervises it until Shutdown is called. It
// blocks until supervision ends, so callers should invoke it in its own
// goroutine.
func (s *Supervisor) Run() {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	attempt := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		err := s.pipeline.Start()
		if err != nil {
			if !isTransient(err) {
				applog.Errorf("pipeline %s: permanent start error, giving up: %v", s.pipeline.stableID, err)
				return
			}
			if !s.wait(backoffFor(attempt), stopCh) {
				return
			}
			attempt++
			s.pipeline.mu.Lock()
			s.pipeline.restartCount++
			s.pipeline.mu.Unlock()
			continue
		}

		// Pipeline is running; wait for it to leave Running (only Stop
		// moves it out; the capture loop never stops itself) or for our
		// own shutdown signal.
		attempt = 0
		if !s.waitForPipelineExit(stopCh) {
			return
		}
	}
}

// waitForPipelineExit blocks until either the pipeline transitions out of
// Running on its own or the supervisor is told to shut down. It returns
// false if shutdown was requested.
func (s *Supervisor) waitForPipelineExit(stopCh chan struct{}) bool {
	const pollInterval = 50 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return false
		case <-ticker.C:
			if s.pipeline.Status().State != Running {
				return true
			}
		}
	}
}

func (s *Supervisor) wait(d time.Duration, stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// Shutdown stops supervision and, if the pipeline is currently running,
// stops it.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.pipeline.Status().State == Running {
		_ = s.pipeline.Stop()
	}
}

func backoffFor(attempt int) time.Duration {
	if attempt >= len(restartBackoff) {
		return restartBackoff[len(restartBackoff)-1]
	}
	return restartBackoff[attempt]
}

// isTransient classifies an error as worth retrying. This service treats
// anything other than a config validation error as transient: PortAudio
// device-open failures are almost always "device busy" or "device
// unplugged", both of which can resolve on their own.
func isTransient(err error) bool {
	var cfgErr *ConfigError
	return !errors.As(err, &cfgErr)
}
