// SPDX-License-Identifier: MIT

// Package throttle implements spec.md §4.4's StreamThrottler: a three-stage
// gate a completed SpectrumFrame must pass before it reaches the
// broadcaster. The stages run in a fixed order — magnitude gate, then
// similarity skip, then target-FPS pacing — and a frame dropped early never
// reaches the later checks.
package throttle

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"ultrasonic/internal/frame"
)

// StreamThrottler decides whether a given SpectrumFrame should be emitted.
// It is owned by one DevicePipeline. Every method takes the throttler's
// mutex, so Allow, UpdateHot and SetFrameInterval may be called from
// different goroutines.
type StreamThrottler struct {
	mu sync.Mutex

	magnitudeThresholdDb float64
	similarityThreshold  float64
	enableSmartSkip      bool
	frameInterval        time.Duration

	lastEmit       time.Time
	haveLastEmit   bool
	lastMagnitudes []float64
}

// NewStreamThrottler constructs a StreamThrottler from spec.md §3's
// StreamConfig fields.
func NewStreamThrottler(magnitudeThresholdDb, similarityThreshold float64, enableSmartSkip bool, targetFps int) *StreamThrottler {
	return &StreamThrottler{
		magnitudeThresholdDb: magnitudeThresholdDb,
		similarityThreshold:  similarityThreshold,
		enableSmartSkip:      enableSmartSkip,
		frameInterval:        fpsToInterval(targetFps),
	}
}

// UpdateHot applies the StreamConfig fields spec.md §4.6 allows to change
// without restarting the pipeline.
func (t *StreamThrottler) UpdateHot(magnitudeThresholdDb, similarityThreshold float64, enableSmartSkip bool, targetFps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.magnitudeThresholdDb = magnitudeThresholdDb
	t.similarityThreshold = similarityThreshold
	t.enableSmartSkip = enableSmartSkip
	t.frameInterval = fpsToInterval(targetFps)
}

// SetFrameInterval is used by the adaptive FPS controller to retarget the
// pacing stage without touching the gate thresholds.
func (t *StreamThrottler) SetFrameInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameInterval = interval
}

// Allow runs the three gates in order and reports whether f should be
// emitted. When it returns true, the throttler's bookkeeping (lastEmit,
// lastMagnitudes) is updated so the next call measures against this frame.
func (t *StreamThrottler) Allow(f *frame.SpectrumFrame, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Stage 1: magnitude gate. A frame whose peak never rises above the
	// configured floor carries nothing worth transmitting (scenario 1:
	// silence produces no frames).
	if f.PeakMagnitudeDb < t.magnitudeThresholdDb {
		return false
	}

	// Stage 2: similarity skip. Two consecutive frames that are nearly
	// identical (e.g. a sustained tone with no drift) don't need to be
	// retransmitted; cosine similarity close to 1 means "no new information".
	if t.enableSmartSkip && t.lastMagnitudes != nil {
		sim := cosineSimilarity(f.MagnitudesDb, t.lastMagnitudes)
		if sim >= t.similarityThreshold {
			return false
		}
	}

	// Stage 3: target-FPS pacing. Even a frame that passed both content
	// gates is dropped if it arrives before the next scheduled emission.
	if t.haveLastEmit && now.Sub(t.lastEmit) < t.frameInterval {
		return false
	}

	t.lastEmit = now
	t.haveLastEmit = true
	t.lastMagnitudes = append(t.lastMagnitudes[:0:0], f.MagnitudesDb...)
	return true
}

func fpsToInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Duration(float64(time.Second) / float64(fps))
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either vector is zero-length or empty (treated as "not similar" rather
// than undefined, so the gate never suppresses a frame it can't compare).
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	dot := floats.Dot(a, b)
	sim := dot / (normA * normB)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}
