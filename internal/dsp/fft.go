// SPDX-License-Identifier: MIT

// Package dsp implements spec.md §4.2's FFTProcessor: a ring buffer of
// incoming mono float32 blocks, windowed and transformed into dB-scale
// magnitude spectra. It is grounded on the teacher's
// internal/analysis/fft.go (workspace pre-allocation, RWMutex-guarded
// magnitude buffer, NewFFTProcessor validation) and internal/fft/fft.go
// (the Processor-holds-workspace shape), generalized from the teacher's
// "push audio, fire-and-forget via Transport" model to "push audio, return
// zero or more completed windows" so the caller (internal/pipeline) can
// thread each one through the throttler before it ever reaches a
// transport.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"ultrasonic/internal/frame"
	"ultrasonic/pkg/bitint"
)

// windowGainDb is the fixed +6 dB window-attenuation compensation baked
// into the dB conversion. spec.md §4.2 step 3 requires this exact
// constant so downstream SPL calibration stays reproducible across
// implementations.
const windowGainDb = 6.0

// epsilon avoids log(0) for a silent bin.
const epsilon = 1e-10

// Processor is the stateful FFT transformer owned by one DevicePipeline.
// FFTSize and SampleRate are immutable for the life of a Processor — per
// spec.md §4.2, changing either requires the pipeline to build a new one.
// WindowKind, ThresholdDb and OverlapFraction are hot and may be changed
// with SetHotParams at any time; the new values apply starting with the
// next completed window.
type Processor struct {
	sampleRate int
	fftSize    int
	binsCount  int
	fftObj     *fourier.FFT

	mu              sync.Mutex
	windowKind      WindowKind
	windowCoeffs    []float64
	overlapFraction float64
	thresholdDb     float64
	buf             []float32
	seq             uint64

	scratchInput  []float64
	scratchOutput []complex128
}

// NewProcessor validates fftSize/sampleRate and constructs a Processor
// with its window coefficients precomputed, mirroring the teacher's
// NewFFTProcessor validation (power-of-two size, positive sample rate).
func NewProcessor(sampleRate, fftSize int, windowKind WindowKind, overlapFraction, thresholdDb float64) (*Processor, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 256 || fftSize > 65536 {
		return nil, fmt.Errorf("dsp: fft size must be a power of two in [256, 65536], got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("dsp: sample rate must be positive, got %d", sampleRate)
	}
	if overlapFraction < 0 || overlapFraction > 0.9 {
		return nil, fmt.Errorf("dsp: overlap fraction must be in [0, 0.9], got %f", overlapFraction)
	}

	binsCount := fftSize / 2
	// fourier.NewFFT produces fftSize/2+1 complex coefficients for real
	// input; we keep all of them in scratch and only read the first
	// binsCount when building a frame, per spec.md's "first fftSize/2 bins".
	return &Processor{
		sampleRate:      sampleRate,
		fftSize:         fftSize,
		binsCount:       binsCount,
		fftObj:          fourier.NewFFT(fftSize),
		windowKind:      windowKind,
		windowCoeffs:    windowCoefficients(windowKind, fftSize),
		overlapFraction: overlapFraction,
		thresholdDb:     thresholdDb,
		buf:             make([]float32, 0, fftSize*2),
		scratchInput:    make([]float64, fftSize),
		scratchOutput:   make([]complex128, fftSize/2+1),
	}, nil
}

// SetHotParams applies the fields spec.md §4.2 allows to change without a
// restart. It takes effect starting with the next completed window.
func (p *Processor) SetHotParams(windowKind WindowKind, overlapFraction, thresholdDb float64) error {
	if overlapFraction < 0 || overlapFraction > 0.9 {
		return fmt.Errorf("dsp: overlap fraction must be in [0, 0.9], got %f", overlapFraction)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if windowKind != p.windowKind {
		p.windowKind = windowKind
		p.windowCoeffs = windowCoefficients(windowKind, p.fftSize)
	}
	p.overlapFraction = overlapFraction
	p.thresholdDb = thresholdDb
	return nil
}

// FFTSize returns the immutable FFT size this Processor was built with.
func (p *Processor) FFTSize() int { return p.fftSize }

// SampleRate returns the immutable sample rate this Processor was built with.
func (p *Processor) SampleRate() int { return p.sampleRate }

// Push accumulates one mono float32 block and returns zero or more
// completed SpectrumFrames, per spec.md §4.2: zero when not enough samples
// have accumulated yet, more than one if the configured overlap causes
// multiple windows to complete within a single push.
func (p *Processor) Push(block []float32) []frame.SpectrumFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, block...)

	hop := int(float64(p.fftSize) * (1 - p.overlapFraction))
	if hop < 1 {
		hop = 1
	}

	var frames []frame.SpectrumFrame
	for len(p.buf) >= p.fftSize {
		frames = append(frames, p.computeWindowLocked(p.buf[:p.fftSize]))

		if hop >= len(p.buf) {
			p.buf = p.buf[:0]
		} else {
			remaining := len(p.buf) - hop
			copy(p.buf, p.buf[hop:])
			p.buf = p.buf[:remaining]
		}
	}
	return frames
}

// computeWindowLocked implements spec.md §4.2 steps 1-5. Callers must hold
// p.mu. samples must be exactly p.fftSize long.
func (p *Processor) computeWindowLocked(samples []float32) frame.SpectrumFrame {
	for i, s := range samples {
		p.scratchInput[i] = float64(s) * p.windowCoeffs[i]
	}

	p.fftObj.Coefficients(p.scratchOutput, p.scratchInput)

	magnitudesDb := make([]float64, p.binsCount)
	var splLinearSum float64
	peakBin := 0
	peakDb := math.Inf(-1)

	for i := 0; i < p.binsCount; i++ {
		mag := cmplx.Abs(p.scratchOutput[i])
		db := 20*math.Log10(mag/float64(p.fftSize)+epsilon) + windowGainDb

		// SPL is computed on the unclamped value (spec.md §4.2 step 5):
		// the noise-floor clamp below must not distort the energy sum.
		splLinearSum += math.Pow(10, db/10)

		if db < p.thresholdDb {
			db = p.thresholdDb
		}
		magnitudesDb[i] = db

		if db > peakDb {
			peakDb = db
			peakBin = i
		}
	}

	splDb := 10 * math.Log10(splLinearSum+epsilon)
	peakFreqHz := float64(peakBin) * float64(p.sampleRate) / float64(p.fftSize)

	p.seq++
	return frame.SpectrumFrame{
		SequenceID:      p.seq,
		TimestampMs:     time.Now().UnixMilli(),
		SampleRate:      p.sampleRate,
		FFTSize:         p.fftSize,
		BinsCount:       p.binsCount,
		MagnitudesDb:    magnitudesDb,
		PeakFrequencyHz: peakFreqHz,
		PeakMagnitudeDb: peakDb,
		SplDb:           splDb,
	}
}
