// SPDX-License-Identifier: MIT
package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ultrasonic/internal/config"
	"ultrasonic/internal/pipeline"
	"ultrasonic/internal/registry"
)

func newTestManager(t *testing.T) *DeviceManager {
	t.Helper()
	reg := registry.NewDeviceRegistry(filepath.Join(t.TempDir(), "devices.json"), 5)
	cfg := config.Default()
	return New(reg, cfg.Audio, cfg.Stream)
}

func TestListDevicesEmptyInitially(t *testing.T) {
	m := newTestManager(t)
	require.Empty(t, m.ListDevices())
}

func TestStatusOfUnknownDeviceIsStopped(t *testing.T) {
	m := newTestManager(t)
	st, err := m.GetStatus("nonexistent")
	require.NoError(t, err)
	require.Equal(t, pipeline.Stopped, st.State)
}

func TestStartDeviceRejectsUnknownStableID(t *testing.T) {
	m := newTestManager(t)
	cfg := config.Default()
	err := m.StartDevice("nonexistent", cfg.Audio, cfg.Stream)
	require.Error(t, err)
}

func TestStopDeviceNeverStartedIsNoop(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.StopDevice("nonexistent"))
}

func TestSubscribeToUnstartedDeviceErrors(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Subscribe("nonexistent")
	require.Error(t, err)
}

func TestUpdateStreamConfigOnUnstartedDeviceErrors(t *testing.T) {
	m := newTestManager(t)
	cfg := config.Default()
	err := m.UpdateStreamConfig("nonexistent", cfg.Stream)
	require.Error(t, err)
}

func TestSystemStatusReflectsNoManagedDevices(t *testing.T) {
	m := newTestManager(t)
	snap := m.SystemStatus()
	require.Equal(t, 0, snap.RunningCount)
	require.Equal(t, 0, snap.TotalCount)
	require.GreaterOrEqual(t, snap.UptimeMs, int64(0))
}

func TestRemoveDeviceRequiresStoppedUnlessForced(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.RemoveDevice("nonexistent", false))
}

func TestBatchStartAndStopCollectPerDeviceErrors(t *testing.T) {
	m := newTestManager(t)
	errs := m.BatchStartDevices([]string{"nonexistent-a", "nonexistent-b"})
	require.Len(t, errs, 2)

	stopErrs := m.BatchStopDevices([]string{"nonexistent-a", "nonexistent-b"})
	require.Empty(t, stopErrs)
}

func TestStopDefaultWithNoDevicesIsNoop(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.StopDefault())
}

func TestSubscribeDefaultWithNoDevicesErrors(t *testing.T) {
	m := newTestManager(t)
	_, err := m.SubscribeDefault()
	require.Error(t, err)
}

func TestPersistDelegatesToRegistry(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Persist())
}
