// SPDX-License-Identifier: MIT
package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveFPSSeedsWithinBounds(t *testing.T) {
	a := NewAdaptiveFPSController(200, 5, 60)
	require.Equal(t, 60, a.CurrentFps())

	a = NewAdaptiveFPSController(1, 5, 60)
	require.Equal(t, 5, a.CurrentFps())
}

func TestAdaptiveFPSLowersOnSustainedSaturation(t *testing.T) {
	a := NewAdaptiveFPSController(30, 5, 60)
	interval := time.Second / 30

	var last int
	var changed bool
	// Simulate many frames where the producer delivers the next block
	// almost immediately (wait/interval well under the saturated
	// watermark), forcing past the cooldown window each time.
	for i := 0; i < 6; i++ {
		last, changed = a.Observe(interval/20, interval)
		if changed {
			break
		}
		// Defeat the adaptation cooldown between synthetic observations.
		a.mu.Lock()
		a.lastAdaptation = time.Now().Add(-time.Second)
		a.mu.Unlock()
	}
	require.True(t, changed)
	require.Less(t, last, 30)
	require.GreaterOrEqual(t, last, 5)
}

func TestAdaptiveFPSRaisesOnSustainedSlack(t *testing.T) {
	a := NewAdaptiveFPSController(30, 5, 60)
	interval := time.Second / 30

	var last int
	var changed bool
	for i := 0; i < 6; i++ {
		last, changed = a.Observe(interval*2, interval)
		if changed {
			break
		}
		a.mu.Lock()
		a.lastAdaptation = time.Now().Add(-time.Second)
		a.mu.Unlock()
	}
	require.True(t, changed)
	require.Greater(t, last, 30)
	require.LessOrEqual(t, last, 60)
}

func TestAdaptiveFPSRespectsCooldown(t *testing.T) {
	a := NewAdaptiveFPSController(30, 5, 60)
	interval := time.Second / 30

	_, changed1 := a.Observe(interval*2, interval)
	_, changed2 := a.Observe(interval*2, interval)

	// At most one of two back-to-back observations should trigger a change,
	// since the second falls inside the cooldown window.
	require.False(t, changed1 && changed2)
}

func TestAdaptiveFPSNeverExceedsBounds(t *testing.T) {
	a := NewAdaptiveFPSController(30, 10, 40)
	interval := time.Second / 30

	for i := 0; i < 50; i++ {
		a.Observe(interval/100, interval)
		a.mu.Lock()
		a.lastAdaptation = time.Now().Add(-time.Second)
		a.mu.Unlock()
	}
	require.LessOrEqual(t, a.CurrentFps(), 40)
	require.GreaterOrEqual(t, a.CurrentFps(), 10)
}
