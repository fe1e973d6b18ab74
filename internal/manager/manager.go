// SPDX-License-Identifier: MIT

// Package manager implements spec.md §4.7's DeviceManager: the top-level
// object that owns the DeviceRegistry and one DevicePipeline (via a
// Supervisor) per started device, and exposes the per-device and
// system-wide operations internal/facade routes HTTP requests to. It is
// grounded on the teacher's devices.go/tui device-list pattern
// (internal/audio/devices.go enumerates, internal/tui/devices.go displays)
// generalized from "list what PortAudio sees" to "own a running pipeline
// per device and track its lifecycle".
package manager

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"ultrasonic/internal/audioio"
	"ultrasonic/internal/broadcast"
	"ultrasonic/internal/config"
	applog "ultrasonic/internal/log"
	"ultrasonic/internal/pipeline"
	"ultrasonic/internal/registry"
)

// entry bundles one managed device's pipeline and its supervising
// goroutine, so DeviceManager's map mutation and pipeline lifecycle stay
// consistent under the same lock.
type entry struct {
	pipeline   *pipeline.DevicePipeline
	supervisor *pipeline.Supervisor
}

// DeviceManager owns the DeviceRegistry and the map of stable device ID to
// its DevicePipeline/Supervisor pair. The map mutex guards only map
// membership; each pipeline has its own internal locking for its own
// state, per spec.md §5's "one lock per concern" discipline.
type DeviceManager struct {
	reg *registry.DeviceRegistry

	mu      sync.Mutex
	entries map[string]*entry

	defaultAudioCfg  config.AudioConfig
	defaultStreamCfg config.StreamConfig

	startedAt time.Time
}

// New constructs a DeviceManager backed by reg, using audioCfg/streamCfg
// as the defaults for any device started without an explicit override.
func New(reg *registry.DeviceRegistry, audioCfg config.AudioConfig, streamCfg config.StreamConfig) *DeviceManager {
	return &DeviceManager{
		reg:              reg,
		entries:          make(map[string]*entry),
		defaultAudioCfg:  audioCfg,
		defaultStreamCfg: streamCfg,
		startedAt:        time.Now(),
	}
}

// RefreshDevices re-enumerates PortAudio's device list, resolving each
// into the registry (assigning stable IDs to anything new) and marking
// the scan complete so previously-seen devices that vanished start
// accumulating staleness. It returns every currently known device,
// newly-seen or not.
func (m *DeviceManager) RefreshDevices() ([]registry.DeviceDescriptor, error) {
	devices, err := audioio.EnumerateDevices()
	if err != nil {
		return nil, fmt.Errorf("manager: enumerate devices: %w", err)
	}

	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		desc, isNew := m.reg.Resolve(d.Name, d.HostApiName, d.Index, d.MaxInputChannels, d.DefaultSampleRate, d.MaxInputChannels > 0)
		seen[desc.StableID] = true
		if isNew {
			applog.Infof("manager: discovered new device %q as %s", d.Name, desc.StableID)
		}
	}
	m.reg.MarkScanComplete(seen)

	return m.reg.Enumerate(), nil
}

// CleanupStaleDevices removes devices that have been missing from
// enumeration for too many scans from the registry, then stops any
// pipeline still running for them.
func (m *DeviceManager) CleanupStaleDevices() []registry.DeviceDescriptor {
	removed := m.reg.Cleanup()
	for _, d := range removed {
		m.StopDevice(d.StableID)
		m.mu.Lock()
		delete(m.entries, d.StableID)
		m.mu.Unlock()
	}
	return removed
}

// ListDevices returns every device the registry currently knows about.
func (m *DeviceManager) ListDevices() []registry.DeviceDescriptor {
	return m.reg.Enumerate()
}

// StartDevice begins supervised capture for stableID, using audioCfg's
// DeviceNames overridden to target this specific device's resolved name
// so the pipeline opens the right hardware even if the caller's default
// config names a different preferred device.
func (m *DeviceManager) StartDevice(stableID string, audioCfg config.AudioConfig, streamCfg config.StreamConfig) error {
	desc, ok := m.reg.Get(stableID)
	if !ok {
		return fmt.Errorf("manager: unknown device %s", stableID)
	}

	m.mu.Lock()
	if _, exists := m.entries[stableID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("manager: device %s is already started", stableID)
	}

	cfg := audioCfg.Clone()
	cfg.DeviceNames = []string{desc.Name}

	p := pipeline.New(stableID, cfg, streamCfg)
	sup := pipeline.NewSupervisor(p)
	m.entries[stableID] = &entry{pipeline: p, supervisor: sup}
	m.mu.Unlock()

	go sup.Run()
	return nil
}

// StartDeviceDefault starts stableID using the manager's default audio and
// stream configuration.
func (m *DeviceManager) StartDeviceDefault(stableID string) error {
	return m.StartDevice(stableID, m.defaultAudioCfg, m.defaultStreamCfg)
}

// StopDevice halts supervision and capture for stableID. It is a no-op if
// the device was never started.
func (m *DeviceManager) StopDevice(stableID string) error {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	if ok {
		delete(m.entries, stableID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	e.supervisor.Shutdown()
	return nil
}

// RestartDevice stops and restarts stableID with the given
// configuration.
func (m *DeviceManager) RestartDevice(stableID string, audioCfg config.AudioConfig, streamCfg config.StreamConfig) error {
	_ = m.StopDevice(stableID)
	return m.StartDevice(stableID, audioCfg, streamCfg)
}

// RemoveDevice stops (if force) or requires-already-stopped (if not) the
// device's pipeline, then forgets the device entirely by deleting it from
// the registry — unlike StopDevice, which only tears down the running
// pipeline and leaves the device known for a future start.
func (m *DeviceManager) RemoveDevice(stableID string, force bool) error {
	m.mu.Lock()
	e, running := m.entries[stableID]
	m.mu.Unlock()

	if running {
		if !force {
			return fmt.Errorf("manager: device %s is running; stop it or pass force=true", stableID)
		}
		e.supervisor.Shutdown()
		m.mu.Lock()
		delete(m.entries, stableID)
		m.mu.Unlock()
	}

	if !m.reg.Remove(stableID) {
		return fmt.Errorf("manager: unknown device %s", stableID)
	}
	return nil
}

// BatchStartDevices starts every device in ids with the manager's default
// configuration, collecting one error per ID that failed to start.
func (m *DeviceManager) BatchStartDevices(ids []string) map[string]error {
	errs := make(map[string]error)
	for _, id := range ids {
		if err := m.StartDeviceDefault(id); err != nil {
			errs[id] = err
		}
	}
	return errs
}

// BatchStopDevices stops every device in ids, collecting one error per ID
// that failed to stop.
func (m *DeviceManager) BatchStopDevices(ids []string) map[string]error {
	errs := make(map[string]error)
	for _, id := range ids {
		if err := m.StopDevice(id); err != nil {
			errs[id] = err
		}
	}
	return errs
}

// firstRunningOrDefault returns the stable ID of a started device (any
// entry in the manager's map, in map iteration order; its pipeline may
// still be starting or retrying), or, if none is started, the registry's
// first known device — the legacy single-stream surface's notion of "the" device when
// the caller never names one explicitly.
func (m *DeviceManager) firstRunningOrDefault() (string, bool) {
	m.mu.Lock()
	for id := range m.entries {
		m.mu.Unlock()
		return id, true
	}
	m.mu.Unlock()

	devices := m.reg.Enumerate()
	if len(devices) == 0 {
		return "", false
	}
	return devices[0].StableID, true
}

// StartDefault starts the legacy single-stream surface's implied device:
// the first already-running pipeline if one exists (left as it is),
// otherwise the registry's first known device, started with the manager's
// default configuration.
func (m *DeviceManager) StartDefault() error {
	id, ok := m.firstRunningOrDefault()
	if !ok {
		return fmt.Errorf("manager: no known devices to start")
	}
	m.mu.Lock()
	_, started := m.entries[id]
	m.mu.Unlock()
	if started {
		return nil
	}
	return m.StartDeviceDefault(id)
}

// StopDefault stops the legacy single-stream surface's implied device.
func (m *DeviceManager) StopDefault() error {
	id, ok := m.firstRunningOrDefault()
	if !ok {
		return nil
	}
	return m.StopDevice(id)
}

// SubscribeDefault subscribes to the legacy single-stream surface's
// implied device, starting it first if nothing is running yet. It
// returns the resolved stable ID alongside the subscription so the caller
// can later call Unsubscribe against the right pipeline.
func (m *DeviceManager) SubscribeDefault() (string, *broadcast.Subscription, error) {
	id, ok := m.firstRunningOrDefault()
	if !ok {
		return "", nil, fmt.Errorf("manager: no known devices to subscribe to")
	}
	m.mu.Lock()
	_, running := m.entries[id]
	m.mu.Unlock()
	if !running {
		if err := m.StartDeviceDefault(id); err != nil {
			return "", nil, err
		}
	}
	sub, err := m.Subscribe(id)
	if err != nil {
		return "", nil, err
	}
	return id, sub, nil
}

// GetStatus returns the running pipeline's status for stableID.
func (m *DeviceManager) GetStatus(stableID string) (pipeline.Status, error) {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	m.mu.Unlock()
	if !ok {
		return pipeline.Status{StableID: stableID, State: pipeline.Stopped}, nil
	}
	return e.pipeline.Status(), nil
}

// SystemSnapshot is the aggregate system-wide health summary
// systemStatus() returns: how many devices are running against how many
// the registry knows about, a self-sampled CPU load estimate, and how
// long this process has been up.
type SystemSnapshot struct {
	RunningCount int
	TotalCount   int
	CpuPct       float64
	UptimeMs     int64
}

// SystemStatus returns the aggregate status across every managed device,
// not a per-device breakdown — callers that want per-device detail should
// use ListDevices plus GetStatus.
func (m *DeviceManager) SystemStatus() SystemSnapshot {
	m.mu.Lock()
	running := 0
	for _, e := range m.entries {
		if e.pipeline.Status().State == pipeline.Running {
			running++
		}
	}
	m.mu.Unlock()

	return SystemSnapshot{
		RunningCount: running,
		TotalCount:   len(m.reg.Enumerate()),
		CpuPct:       sampleCPUPct(),
		UptimeMs:     time.Since(m.startedAt).Milliseconds(),
	}
}

// sampleCPUPct estimates process CPU load without an external profiling
// dependency: the fraction of wall-clock time the garbage collector has
// consumed, plus a goroutine-pressure term relative to GOMAXPROCS, clamped
// to [0, 100]. It is a rough self-sampling proxy, not a precise CPU
// accounting figure.
func sampleCPUPct() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	gcPct := ms.GCCPUFraction * 100
	goroutinePct := float64(runtime.NumGoroutine()) / float64(runtime.GOMAXPROCS(0)) * 100

	pct := gcPct + goroutinePct
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// Subscribe registers a new frame consumer for stableID's pipeline.
// Returns an error if the device isn't currently started.
func (m *DeviceManager) Subscribe(stableID string) (*broadcast.Subscription, error) {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("manager: device %s is not started", stableID)
	}
	sub := e.pipeline.Subscribe()
	if sub == nil {
		return nil, fmt.Errorf("manager: device %s is not currently running", stableID)
	}
	return sub, nil
}

// Unsubscribe tears down a subscription previously returned by Subscribe.
func (m *DeviceManager) Unsubscribe(stableID string, id uuid.UUID) {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	m.mu.Unlock()
	if ok {
		e.pipeline.Unsubscribe(id)
	}
}

// UpdateStreamConfig applies new StreamConfig fields to a running device.
func (m *DeviceManager) UpdateStreamConfig(stableID string, cfg config.StreamConfig) error {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("manager: device %s is not started", stableID)
	}
	return e.pipeline.UpdateStreamConfig(cfg)
}

// UpdateAudioHotParams applies the hot-reconfigurable AudioConfig fields to
// a running device.
func (m *DeviceManager) UpdateAudioHotParams(stableID, windowKind string, overlapFraction, thresholdDb float64) error {
	m.mu.Lock()
	e, ok := m.entries[stableID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("manager: device %s is not started", stableID)
	}
	return e.pipeline.UpdateAudioHotParams(windowKind, overlapFraction, thresholdDb)
}

// StopAll halts every currently managed device, used at process shutdown.
func (m *DeviceManager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.StopDevice(id); err != nil {
			applog.Warnf("manager: stop %s: %v", id, err)
		}
	}
}

// Persist writes the registry's current state to disk.
func (m *DeviceManager) Persist() error {
	return m.reg.Persist()
}
