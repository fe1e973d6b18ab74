// SPDX-License-Identifier: MIT

// Package registry implements spec.md §4.1's device registry: every
// physical input device PortAudio reports is assigned a stable ID derived
// from its name, input channel count and default sample rate, independent
// of PortAudio's own device index
// (which can renumber across OS device hot-plug events). The registry
// persists what it has seen to a JSON file so stable IDs survive process
// restarts, following the atomic temp-file-then-rename persistence idiom
// the teacher's recording.go uses for capture files
// (internal/audio/recording.go), applied here to a small metadata document
// instead of a WAV body.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	applog "ultrasonic/internal/log"
)

// DeviceDescriptor is the registry's durable record for one physical
// device, keyed by StableID. SystemIndex is PortAudio's own device index
// at last enumeration — it can renumber across hot-plug events, which is
// exactly why StableID exists and never changes.
type DeviceDescriptor struct {
	StableID          string    `json:"stable_id"`
	SystemIndex       int       `json:"system_index"`
	Name              string    `json:"name"`
	HostApiName       string    `json:"host_api_name"`
	MaxInputChannels  int       `json:"max_input_channels"`
	DefaultSampleRate float64   `json:"default_sample_rate"`
	IsInput           bool      `json:"is_input"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	ScansSinceSeen    int       `json:"scans_since_seen"`
}

// persistedFile is the on-disk shape of the registry file.
type persistedFile struct {
	Devices []DeviceDescriptor `json:"devices"`
}

// DeviceRegistry owns the set of known devices and their stable IDs. All
// mutation happens under a single mutex; callers that need a consistent
// view across several devices should use Enumerate, which returns a
// snapshot rather than live pointers.
type DeviceRegistry struct {
	mu              sync.Mutex
	path            string
	staleAfterScans int
	devices         map[string]*DeviceDescriptor
}

// NewDeviceRegistry constructs an empty registry backed by path. Call Load
// to populate it from a prior run's persisted state.
func NewDeviceRegistry(path string, staleAfterScans int) *DeviceRegistry {
	if staleAfterScans < 1 {
		staleAfterScans = 1
	}
	return &DeviceRegistry{
		path:            path,
		staleAfterScans: staleAfterScans,
		devices:         make(map[string]*DeviceDescriptor),
	}
}

// Load reads the registry's persisted state from disk. A missing file is
// not an error — it means this is the first run. A corrupt file is
// preserved as path+".bak" and the registry starts empty, rather than
// crashing startup or silently discarding data the operator might want.
func (r *DeviceRegistry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}

	var pf persistedFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		applog.Warnf("registry: %s is corrupt, moving aside to %s.bak: %v", r.path, r.path, err)
		if renameErr := os.Rename(r.path, r.path+".bak"); renameErr != nil {
			applog.Errorf("registry: failed to preserve corrupt file: %v", renameErr)
		}
		return nil
	}

	for i := range pf.Devices {
		d := pf.Devices[i]
		r.devices[d.StableID] = &d
	}
	return nil
}

// Persist writes the current registry state atomically: it writes to a
// temp file in the same directory, then renames over the destination, so
// a crash mid-write never leaves a half-written registry file behind.
func (r *DeviceRegistry) Persist() error {
	r.mu.Lock()
	pf := persistedFile{Devices: make([]DeviceDescriptor, 0, len(r.devices))}
	for _, d := range r.devices {
		pf.Devices = append(pf.Devices, *d)
	}
	r.mu.Unlock()

	sort.Slice(pf.Devices, func(i, j int) bool { return pf.Devices[i].StableID < pf.Devices[j].StableID })

	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".device_mapping-*.tmp")
	if err != nil {
		return fmt.Errorf("registry: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("registry: rename into place: %w", err)
	}
	return nil
}

// Resolve returns the DeviceDescriptor identified by (name, channels,
// defaultSampleRate) — the fields P7 requires the stable ID be injective
// over — creating one with a newly computed stable ID if this exact
// device has never been seen before. systemIndex, hostApiName and isInput
// are refreshed metadata, not identity: PortAudio's index can renumber
// across hot-plug events, which is the entire reason a device is looked
// up by its acoustic identity instead. The second return value reports
// whether the descriptor was newly created by this call.
func (r *DeviceRegistry) Resolve(name, hostApiName string, systemIndex, maxInputChannels int, defaultSampleRate float64, isInput bool) (DeviceDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.Name == name && d.MaxInputChannels == maxInputChannels && d.DefaultSampleRate == defaultSampleRate {
			d.SystemIndex = systemIndex
			d.HostApiName = hostApiName
			d.IsInput = isInput
			d.LastSeen = time.Now()
			d.ScansSinceSeen = 0
			return *d, false
		}
	}

	id := r.computeStableIDLocked(name, maxInputChannels, defaultSampleRate)
	now := time.Now()
	d := &DeviceDescriptor{
		StableID:          id,
		SystemIndex:       systemIndex,
		Name:              name,
		HostApiName:       hostApiName,
		MaxInputChannels:  maxInputChannels,
		DefaultSampleRate: defaultSampleRate,
		IsInput:           isInput,
		FirstSeen:         now,
		LastSeen:          now,
	}
	r.devices[id] = d
	return *d, true
}

// slugPrefix lowercases name, strips everything but letters and digits,
// and truncates to at most 16 characters, giving the human-readable half
// of a stable ID. An empty or fully-stripped name falls back to "device"
// so the ID never starts with a bare underscore.
func slugPrefix(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
		if sb.Len() >= 16 {
			break
		}
	}
	slug := sb.String()
	if slug == "" {
		slug = "device"
	}
	return slug
}

// computeStableIDLocked derives a stable ID of the form <slug>_<hash6>:
// a human-readable prefix from the device name, plus a 6-hex-character
// digest over the name, channel count and default sample rate — the
// three fields P7 requires distinct devices never collide on. If that
// suffix already names a different physical device (a hash collision, or
// more likely two devices whose truncated digests happen to match), the
// suffix is extended two hex characters at a time until it's unambiguous.
// Callers must hold r.mu.
func (r *DeviceRegistry) computeStableIDLocked(name string, maxInputChannels int, defaultSampleRate float64) string {
	slug := slugPrefix(name)

	key := name + "\x00" + strconv.Itoa(maxInputChannels) + "\x00" + strconv.FormatFloat(defaultSampleRate, 'f', -1, 64)
	sum := sha256.Sum256([]byte(key))
	full := hex.EncodeToString(sum[:])

	for length := 6; length <= len(full); length += 2 {
		suffix := full[:length]
		candidate := slug + "_" + suffix
		existing, taken := r.devices[candidate]
		if !taken || (existing.Name == name && existing.MaxInputChannels == maxInputChannels && existing.DefaultSampleRate == defaultSampleRate) {
			return candidate
		}
	}
	return slug + "_" + full
}

// Enumerate returns a snapshot of every known device, sorted by StableID.
func (r *DeviceRegistry) Enumerate() []DeviceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceDescriptor, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StableID < out[j].StableID })
	return out
}

// Get returns the descriptor for a given stable ID, if known.
func (r *DeviceRegistry) Get(stableID string) (DeviceDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[stableID]
	if !ok {
		return DeviceDescriptor{}, false
	}
	return *d, true
}

// MarkScanComplete is called once per enumeration pass with the set of
// stable IDs observed during that pass. Devices not observed have their
// miss counter incremented; devices observed have it reset to zero via
// Resolve. It does not remove stale devices itself — call Cleanup for
// that, so the caller controls when stale entries actually disappear.
func (r *DeviceRegistry) MarkScanComplete(seenIDs map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, d := range r.devices {
		if !seenIDs[id] {
			d.ScansSinceSeen++
		}
	}
}

// Remove deletes stableID from the registry outright, regardless of its
// staleness counter. It reports whether the device was known.
func (r *DeviceRegistry) Remove(stableID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[stableID]; !ok {
		return false
	}
	delete(r.devices, stableID)
	return true
}

// Cleanup removes every device whose miss counter has reached the
// configured staleness threshold and returns the removed descriptors.
func (r *DeviceRegistry) Cleanup() []DeviceDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []DeviceDescriptor
	for id, d := range r.devices {
		if d.ScansSinceSeen >= r.staleAfterScans {
			removed = append(removed, *d)
			delete(r.devices, id)
		}
	}
	return removed
}
