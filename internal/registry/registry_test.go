// SPDX-License-Identifier: MIT
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResolveAssignsStableID(t *testing.T) {
	r := NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 5)

	d, isNew := r.Resolve("USB Ultrasonic Mic", "CoreAudio", 0, 2, 384000, true)
	require.True(t, isNew)
	require.NotEmpty(t, d.StableID)
	require.Contains(t, d.StableID, "usbultrasonicmic_")
}

// TestResolveIsIdempotentPropertyP6 exercises P6: resolving the same
// (name, channels, sampleRate) triple repeatedly always returns the same
// stable ID.
func TestResolveIsIdempotentPropertyP6(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z0-9 _-]{1,40}`).Draw(t, "name")
		hostApi := rapid.StringMatching(`[a-zA-Z0-9 _-]{1,20}`).Draw(t, "hostApi")
		channels := rapid.IntRange(1, 8).Draw(t, "channels")
		sampleRate := rapid.Float64Range(8000, 384000).Draw(t, "sampleRate")

		r := NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 5)
		first, isNew := r.Resolve(name, hostApi, 0, channels, sampleRate, true)
		if !isNew {
			t.Fatalf("first resolve of a fresh registry must report isNew")
		}
		for i := 0; i < 5; i++ {
			again, isNew := r.Resolve(name, hostApi, 0, channels, sampleRate, true)
			if isNew {
				t.Fatalf("repeated resolve reported isNew on call %d", i)
			}
			if again.StableID != first.StableID {
				t.Fatalf("stable ID changed: %q vs %q", first.StableID, again.StableID)
			}
		}
	})
}

// TestDistinctDevicesGetDistinctIDsPropertyP7 exercises P7: two devices
// with different (name, channels, sampleRate) triples never collide on
// their assigned stable ID, even when the collision-resolution path is
// exercised.
func TestDistinctDevicesGetDistinctIDsPropertyP7(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 12).Draw(t, "n")
		r := NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 5)

		seen := make(map[string]bool)
		for i := 0; i < n; i++ {
			name := rapid.StringMatching(`[a-zA-Z0-9]{1,10}`).Draw(t, "name")
			channels := rapid.IntRange(1, 8).Draw(t, "channels")
			sampleRate := rapid.Float64Range(8000, 384000).Draw(t, "sampleRate")
			key := fmt.Sprintf("%s\x00%d\x00%f", name, channels, sampleRate)
			if seen[key] {
				continue // same logical device drawn twice, not a distinctness violation
			}
			seen[key] = true

			d, _ := r.Resolve(name, "CoreAudio", 0, channels, sampleRate, true)
			for _, existing := range r.Enumerate() {
				if existing.StableID == d.StableID && existing.Name != d.Name {
					t.Fatalf("collision: %q and %q both resolved to %q", existing.Name, d.Name, d.StableID)
				}
			}
		}
	})
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")

	r1 := NewDeviceRegistry(path, 5)
	d1, _ := r1.Resolve("Mic A", "ALSA", 0, 2, 48000, true)
	d2, _ := r1.Resolve("Mic B", "ALSA", 1, 2, 48000, true)
	require.NoError(t, r1.Persist())

	r2 := NewDeviceRegistry(path, 5)
	require.NoError(t, r2.Load())

	got1, ok := r2.Get(d1.StableID)
	require.True(t, ok)
	require.Equal(t, "Mic A", got1.Name)

	got2, ok := r2.Get(d2.StableID)
	require.True(t, ok)
	require.Equal(t, "Mic B", got2.Name)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	r := NewDeviceRegistry(filepath.Join(t.TempDir(), "nonexistent.json"), 5)
	require.NoError(t, r.Load())
	require.Empty(t, r.Enumerate())
}

func TestLoadCorruptFileBacksUpAndStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	r := NewDeviceRegistry(path, 5)
	require.NoError(t, r.Load())
	require.Empty(t, r.Enumerate())
	require.FileExists(t, path+".bak")
}

func TestMarkScanCompleteAndCleanupRemovesStaleDevices(t *testing.T) {
	r := NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 2)
	d, _ := r.Resolve("Gone Device", "ALSA", 0, 2, 48000, true)

	r.MarkScanComplete(map[string]bool{})
	require.Empty(t, r.Cleanup())

	r.MarkScanComplete(map[string]bool{})
	removed := r.Cleanup()
	require.Len(t, removed, 1)
	require.Equal(t, d.StableID, removed[0].StableID)

	_, ok := r.Get(d.StableID)
	require.False(t, ok)
}

func TestMarkScanCompleteResetsOnReappearance(t *testing.T) {
	r := NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 2)
	d, _ := r.Resolve("Flaky Device", "ALSA", 0, 2, 48000, true)

	r.MarkScanComplete(map[string]bool{})
	r.Resolve("Flaky Device", "ALSA", 0, 2, 48000, true) // reappears, resets ScansSinceSeen to 0

	got, ok := r.Get(d.StableID)
	require.True(t, ok)
	require.Equal(t, 0, got.ScansSinceSeen)
}
