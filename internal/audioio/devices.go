// SPDX-License-Identifier: MIT

// Package audioio wraps PortAudio capture into the mono float32 block
// stream the rest of the pipeline consumes, and owns device enumeration.
// It is grounded on the teacher's internal/audio package (devices.go for
// enumeration, engine.go for the stream-callback/processing split), ported
// from int32 samples to float32 per spec.md §3's AudioConfig, and from a
// single hardcoded device to the stable-ID-aware multi-device model
// internal/registry introduces.
package audioio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Device describes one host-reported input-capable audio device.
type Device struct {
	Index             int
	Name              string
	HostApiName       string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefaultInput    bool
}

// Initialize starts the PortAudio host API. Must be called once before any
// other function in this package and paired with Terminate at shutdown.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate shuts down the PortAudio host API.
func Terminate() error {
	return portaudio.Terminate()
}

// EnumerateDevices lists every input-capable device PortAudio currently
// reports.
func EnumerateDevices() ([]Device, error) {
	paDevs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audioio: enumerate devices: %w", err)
	}

	defaultIn, defaultErr := portaudio.DefaultInputDevice()

	out := make([]Device, 0, len(paDevs))
	for i, info := range paDevs {
		if info.MaxInputChannels == 0 {
			continue
		}
		hostApiName := "unknown"
		if info.HostApi != nil {
			hostApiName = info.HostApi.Name
		}
		out = append(out, Device{
			Index:             i,
			Name:              info.Name,
			HostApiName:       hostApiName,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    defaultErr == nil && defaultIn != nil && info.Name == defaultIn.Name,
		})
	}
	return out, nil
}

// ResolveDevice picks the PortAudio device info matching the first name in
// preferredNames that's actually present, falling back to the system
// default input device when none match or preferredNames is empty —
// spec.md §4.1's "preferred device names with fallback to default".
func ResolveDevice(preferredNames []string) (*portaudio.DeviceInfo, error) {
	paDevs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audioio: enumerate devices: %w", err)
	}

	for _, want := range preferredNames {
		for _, info := range paDevs {
			if info.MaxInputChannels > 0 && info.Name == want {
				return info, nil
			}
		}
	}

	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("audioio: no preferred device found and no system default: %w", err)
	}
	return def, nil
}

// inputLatencyFor returns the low-latency figure for info; the façade and
// config both only ever ask for low latency, since the service has no use
// for PortAudio's high-latency/high-stability profile.
func inputLatencyFor(info *portaudio.DeviceInfo) time.Duration {
	return info.DefaultLowInputLatency
}
