// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ultrasonic/pkg/testsupport"
)

func TestNewProcessorValidation(t *testing.T) {
	cases := []struct {
		name       string
		sampleRate int
		fftSize    int
		overlap    float64
		wantErr    bool
	}{
		{"valid", 48000, 8192, 0.5, false},
		{"non power of two", 48000, 1000, 0.5, true},
		{"too small", 48000, 128, 0.5, true},
		{"too large", 48000, 131072, 0.5, true},
		{"bad sample rate", 0, 8192, 0.5, true},
		{"bad overlap", 48000, 8192, 0.95, true},
	}
	for _, c := range cases {
		_, err := NewProcessor(c.sampleRate, c.fftSize, Hann, c.overlap, -100)
		if c.wantErr {
			require.Errorf(t, err, c.name)
		} else {
			require.NoErrorf(t, err, c.name)
		}
	}
}

func TestPushAccumulatesUntilFFTSize(t *testing.T) {
	p, err := NewProcessor(48000, 1024, Hann, 0, -100)
	require.NoError(t, err)

	frames := p.Push(testsupport.Silence(500))
	require.Empty(t, frames, "should not emit before fftSize samples accumulate")

	frames = p.Push(testsupport.Silence(524))
	require.Len(t, frames, 1)
}

func TestPushWithZeroOverlapAdvancesExactlyOneWindow(t *testing.T) {
	p, err := NewProcessor(48000, 512, Hann, 0, -100)
	require.NoError(t, err)

	frames := p.Push(testsupport.Silence(1536))
	require.Len(t, frames, 3)
	require.Equal(t, uint64(1), frames[0].SequenceID)
	require.Equal(t, uint64(2), frames[1].SequenceID)
	require.Equal(t, uint64(3), frames[2].SequenceID)
}

func TestPushBinsCountIsHalfFFTSize(t *testing.T) {
	p, err := NewProcessor(48000, 2048, Hann, 0.5, -100)
	require.NoError(t, err)

	frames := p.Push(testsupport.GenerateSineWave(2048, 48000, 1000, 1))
	require.Len(t, frames, 1)
	require.Equal(t, 1024, frames[0].BinsCount)
	require.Len(t, frames[0].MagnitudesDb, 1024)
}

// TestPureTonePeakNearExpectedBin is a sanity check that a pure tone's peak
// bin lands within one bin-width of its true frequency.
func TestPureTonePeakNearExpectedBin(t *testing.T) {
	const sampleRate = 48000
	const fftSize = 4096
	const freq = 6000.0

	p, err := NewProcessor(sampleRate, fftSize, Hann, 0, -140)
	require.NoError(t, err)

	frames := p.Push(testsupport.GenerateSineWave(fftSize, sampleRate, freq, 1))
	require.Len(t, frames, 1)

	binWidth := float64(sampleRate) / float64(fftSize)
	require.InDelta(t, freq, frames[0].PeakFrequencyHz, binWidth)
}

// TestThresholdClampsFloor exercises P3: every magnitude in the emitted
// frame is >= thresholdDb.
func TestThresholdClampsFloor(t *testing.T) {
	const thresholdDb = -60.0
	p, err := NewProcessor(48000, 1024, Hann, 0, thresholdDb)
	require.NoError(t, err)

	frames := p.Push(testsupport.Silence(1024))
	require.Len(t, frames, 1)
	for i, v := range frames[0].MagnitudesDb {
		require.GreaterOrEqualf(t, v, thresholdDb, "bin %d", i)
	}
}

// TestPeakMagnitudeEqualsMaxOfEmittedMagnitudes exercises P4: peak_magnitude_db
// equals max(magnitudes_db) of the same (post-clamp) frame, exactly.
func TestPeakMagnitudeEqualsMaxOfEmittedMagnitudes(t *testing.T) {
	p, err := NewProcessor(48000, 1024, Hann, 0, -90)
	require.NoError(t, err)

	frames := p.Push(testsupport.GenerateComplexWave(1024, 48000, 3000))
	require.Len(t, frames, 1)

	want := math.Inf(-1)
	for _, v := range frames[0].MagnitudesDb {
		if v > want {
			want = v
		}
	}
	require.Equal(t, want, frames[0].PeakMagnitudeDb)
}

// TestPeakMagnitudePropertyP4 draws random signals and window configurations
// and checks the P4 invariant holds generatively, not just on fixed inputs.
func TestPeakMagnitudePropertyP4(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fftSize := rapid.SampledFrom([]int{256, 512, 1024, 2048}).Draw(t, "fftSize")
		freq := rapid.Float64Range(100, 15000).Draw(t, "freq")
		threshold := rapid.Float64Range(-140, -40).Draw(t, "threshold")

		p, err := NewProcessor(48000, fftSize, Hann, 0, threshold)
		if err != nil {
			t.Fatalf("NewProcessor: %v", err)
		}

		frames := p.Push(testsupport.GenerateSineWave(fftSize, 48000, freq, 1))
		if len(frames) != 1 {
			t.Fatalf("expected exactly one frame, got %d", len(frames))
		}

		want := math.Inf(-1)
		for _, v := range frames[0].MagnitudesDb {
			if v > want {
				want = v
			}
		}
		if want != frames[0].PeakMagnitudeDb {
			t.Fatalf("peak mismatch: max(magnitudes)=%v peak=%v", want, frames[0].PeakMagnitudeDb)
		}
	})
}

// TestDeterminismPropertyP5 exercises P5: identical input through two
// independently constructed processors with identical configuration
// produces byte-for-byte identical magnitude output.
func TestDeterminismPropertyP5(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fftSize := rapid.SampledFrom([]int{256, 512, 1024}).Draw(t, "fftSize")
		freq := rapid.Float64Range(100, 10000).Draw(t, "freq")

		p1, err := NewProcessor(48000, fftSize, Hamming, 0, -120)
		if err != nil {
			t.Fatalf("NewProcessor p1: %v", err)
		}
		p2, err := NewProcessor(48000, fftSize, Hamming, 0, -120)
		if err != nil {
			t.Fatalf("NewProcessor p2: %v", err)
		}

		signal := testsupport.GenerateSineWave(fftSize, 48000, freq, 0.8)
		f1 := p1.Push(signal)
		f2 := p2.Push(signal)

		if len(f1) != 1 || len(f2) != 1 {
			t.Fatalf("expected one frame each, got %d and %d", len(f1), len(f2))
		}
		if len(f1[0].MagnitudesDb) != len(f2[0].MagnitudesDb) {
			t.Fatalf("bin count mismatch")
		}
		for i := range f1[0].MagnitudesDb {
			if f1[0].MagnitudesDb[i] != f2[0].MagnitudesDb[i] {
				t.Fatalf("bin %d differs: %v vs %v", i, f1[0].MagnitudesDb[i], f2[0].MagnitudesDb[i])
			}
		}
	})
}

func TestSetHotParamsChangesWindowAndThreshold(t *testing.T) {
	p, err := NewProcessor(48000, 1024, Rectangular, 0, -200)
	require.NoError(t, err)

	err = p.SetHotParams(Hann, 0, -50)
	require.NoError(t, err)

	frames := p.Push(testsupport.Silence(1024))
	require.Len(t, frames, 1)
	for _, v := range frames[0].MagnitudesDb {
		require.GreaterOrEqual(t, v, -50.0)
	}
}

func TestSetHotParamsRejectsBadOverlap(t *testing.T) {
	p, err := NewProcessor(48000, 1024, Hann, 0, -100)
	require.NoError(t, err)
	require.Error(t, p.SetHotParams(Hann, 0.99, -100))
}
