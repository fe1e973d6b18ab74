// SPDX-License-Identifier: MIT
package audioio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RawCaptureRecorder is a supplemental, off-by-default debug sidecar that
// writes the mono float32 stream a pipeline is analyzing out to a WAV file
// for offline calibration — useful when tuning thresholdDb or window
// choice against a real capture rather than guessing. It is ported
// directly from the teacher's StartRecording/StopRecording
// (internal/audio/recording.go), generalized from interleaved int32 PCM to
// the mono float32 stream this service works in. spec.md's non-goals
// exclude persisting spectra, not raw audio, so this stays scoped to a
// manually-triggered calibration aid rather than an always-on feature.
type RawCaptureRecorder struct {
	sampleRate int

	mu         sync.Mutex
	recording  int32
	outputFile *os.File
	encoder    *wav.Encoder
	sampleBuf  *audio.FloatBuffer
}

// NewRawCaptureRecorder constructs a recorder for a mono stream at
// sampleRate. It writes nothing until StartCapture is called.
func NewRawCaptureRecorder(sampleRate int) *RawCaptureRecorder {
	return &RawCaptureRecorder{sampleRate: sampleRate}
}

// StartCapture opens filename and begins writing every subsequent
// WriteSamples call as 32-bit float WAV data.
func (r *RawCaptureRecorder) StartCapture(filename string) error {
	if atomic.LoadInt32(&r.recording) == 1 {
		return fmt.Errorf("audioio: capture already in progress")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("audioio: create capture file: %w", err)
	}

	r.mu.Lock()
	r.outputFile = file
	r.encoder = wav.NewEncoder(file, r.sampleRate, 32, 1, 3) // format 3: IEEE float
	r.sampleBuf = &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: r.sampleRate},
	}
	r.mu.Unlock()

	atomic.StoreInt32(&r.recording, 1)
	return nil
}

// WriteSamples appends block to the open capture file, if any. It is a
// no-op when no capture is in progress, so pipeline code can call it
// unconditionally on every block without branching on recorder state.
func (r *RawCaptureRecorder) WriteSamples(block []float32) error {
	if atomic.LoadInt32(&r.recording) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return nil
	}

	data := make([]float64, len(block))
	for i, s := range block {
		data[i] = float64(s)
	}
	r.sampleBuf.Data = data

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("audioio: write capture sample: %w", err)
	}
	return nil
}

// StopCapture closes the WAV encoder and underlying file. Safe to call
// when no capture is in progress.
func (r *RawCaptureRecorder) StopCapture() error {
	if atomic.LoadInt32(&r.recording) == 0 {
		return nil
	}
	atomic.StoreInt32(&r.recording, 0)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder != nil {
		if err := r.encoder.Close(); err != nil {
			return fmt.Errorf("audioio: close capture encoder: %w", err)
		}
		r.encoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return fmt.Errorf("audioio: close capture file: %w", err)
		}
		r.outputFile = nil
	}
	return nil
}

// IsCapturing reports whether a capture is currently in progress.
func (r *RawCaptureRecorder) IsCapturing() bool {
	return atomic.LoadInt32(&r.recording) == 1
}
