// SPDX-License-Identifier: MIT

// Package pipeline implements spec.md §4.6's DevicePipeline: the state
// machine that owns one device's AudioSource, FFTProcessor, StreamThrottler
// and Broadcaster, and wires them together into a running capture-to-fanout
// chain. It is grounded on the teacher's Engine
// (internal/audio/engine.go) for the start/stop/process-loop shape, and on
// internal/analysis/adaptive_fft.go's cooldown-guarded adaptation loop for
// the auto-restart backoff in restart.go.
package pipeline

import (
	"fmt"

	"ultrasonic/internal/config"
)

// State is one of the four states spec.md §4.6 names for a DevicePipeline.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time snapshot of a DevicePipeline's health, the
// shape internal/manager and internal/facade surface to operators.
// ObservedFps is the adaptive FPS controller's current rate, or
// StreamConfig.TargetFps when adaptive FPS is off; it is not measured from
// the frames actually emitted.
type Status struct {
	StableID        string
	State           State
	LastError       string
	AudioConfig     config.AudioConfig
	StreamConfig    config.StreamConfig
	SubscriberCount int
	ObservedFps     float64
	TotalFrames     uint64
	TotalDropped    uint64
	Overruns        uint64
	RestartCount    int
	UptimeMs        int64
}
