// SPDX-License-Identifier: MIT
package throttle

import (
	"math"
	"sync"
	"time"
)

// AdaptiveFPSController implements spec.md §4.4's adaptive frame-rate
// throttling: a smoothed estimate of how much of each frame interval is
// spent waiting on the producer (the AudioSource/FFTProcessor chain)
// relative to how much is spent idle, used to nudge the target FPS up or
// down within configured bounds. It is grounded on the teacher's
// AdaptiveFFTParams.AdaptToAudio (internal/analysis/adaptive_fft.go):
// same shape — an EWMA-smoothed signal, a cooldown between adjustments,
// and a clamp on step size — repurposed from energy-band ratios to a
// timing ratio, since this service adapts frame rate rather than FFT size.
type AdaptiveFPSController struct {
	mu sync.Mutex

	minFps     int
	maxFps     int
	currentFps float64

	ewmaRatio float64
	haveEwma  bool
	smoothing float64

	lastAdaptation   time.Time
	haveLastAdapt    bool
	adaptationPeriod time.Duration
}

// NewAdaptiveFPSController constructs a controller seeded at initialFps,
// clamped to [minFps, maxFps].
func NewAdaptiveFPSController(initialFps, minFps, maxFps int) *AdaptiveFPSController {
	if minFps < 1 {
		minFps = 1
	}
	if maxFps < minFps {
		maxFps = minFps
	}
	fps := clampFloat(float64(initialFps), float64(minFps), float64(maxFps))
	return &AdaptiveFPSController{
		minFps:           minFps,
		maxFps:           maxFps,
		currentFps:       fps,
		smoothing:        0.3,
		adaptationPeriod: 500 * time.Millisecond,
	}
}

// CurrentFps returns the controller's present target, the value the
// pipeline should feed into StreamThrottler.SetFrameInterval.
func (a *AdaptiveFPSController) CurrentFps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(math.Round(a.currentFps))
}

// Observe feeds one measurement — how long the FFTProcessor sat idle
// waiting on the AudioSource for this frame, against the frame interval
// the throttler is currently pacing to — into the EWMA. It returns the
// (possibly updated) target FPS and whether this call changed it.
//
// A low ratio (the producer delivers the next block almost immediately,
// well inside the frame interval) means the pipeline is saturated at the
// current rate; the controller lowers the target. A high ratio (the
// producer has plenty of slack before the next frame is due) means the
// device can sustain a faster rate; the controller raises the target, up
// to maxFps.
func (a *AdaptiveFPSController) Observe(producerWait, frameInterval time.Duration) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if frameInterval <= 0 {
		return int(math.Round(a.currentFps)), false
	}
	ratio := float64(producerWait) / float64(frameInterval)

	if !a.haveEwma {
		a.ewmaRatio = ratio
		a.haveEwma = true
	} else {
		a.ewmaRatio = a.smoothing*ratio + (1-a.smoothing)*a.ewmaRatio
	}

	if a.haveLastAdapt && time.Since(a.lastAdaptation) < a.adaptationPeriod {
		return int(math.Round(a.currentFps)), false
	}

	const stepFraction = 0.10
	const saturatedWatermark = 0.1
	const slackWatermark = 0.5

	previous := a.currentFps
	switch {
	case a.ewmaRatio < saturatedWatermark:
		a.currentFps = clampFloat(a.currentFps*(1-stepFraction), float64(a.minFps), float64(a.maxFps))
	case a.ewmaRatio > slackWatermark:
		a.currentFps = clampFloat(a.currentFps*(1+stepFraction), float64(a.minFps), float64(a.maxFps))
	}

	if a.currentFps != previous {
		a.lastAdaptation = time.Now()
		a.haveLastAdapt = true
		return int(math.Round(a.currentFps)), true
	}
	return int(math.Round(a.currentFps)), false
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
