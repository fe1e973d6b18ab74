// SPDX-License-Identifier: MIT
package frame

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func makeFrame(mags []float64) *SpectrumFrame {
	return &SpectrumFrame{
		SequenceID:      7,
		TimestampMs:     1234,
		SampleRate:      48000,
		FFTSize:         len(mags) * 2,
		BinsCount:       len(mags),
		MagnitudesDb:    mags,
		PeakFrequencyHz: 10000,
		PeakMagnitudeDb: -3,
		SplDb:           -10,
		Fps:             30,
	}
}

// TestEncodeRoundTrip exercises P1: len(gunzip(base64-decode(data))) ==
// 4*bins_count, and the decoded magnitudes match the source exactly
// (float32 round-trip, no precision loss beyond the cast itself).
func TestEncodeRoundTrip(t *testing.T) {
	enc := NewEncoder()
	mags := []float64{-100, -80.5, -3.25, 0, -59.999}
	wf, err := enc.Encode(makeFrame(mags), 6)
	require.NoError(t, err)

	require.Equal(t, len(mags)*4, wf.OriginalSizeBytes)

	decoded, err := DecodeMagnitudes(wf)
	require.NoError(t, err)
	require.Len(t, decoded, len(mags))
	for i, v := range mags {
		require.InDelta(t, float64(float32(v)), decoded[i], 1e-6)
	}
}

func TestEncodeCompressionLevels(t *testing.T) {
	enc := NewEncoder()
	mags := make([]float64, 4096)
	for i := range mags {
		mags[i] = -100 // highly compressible: constant signal
	}
	f := makeFrame(mags)

	for _, level := range []int{1, 6, 9} {
		wf, err := enc.Encode(f, level)
		require.NoErrorf(t, err, "level %d", level)
		require.Equal(t, 4096*4, wf.OriginalSizeBytes)
		require.Greater(t, wf.DataSizeBytes, 0)
	}
}

func TestEncodeRejectsInvalidLevel(t *testing.T) {
	enc := NewEncoder()
	_, err := enc.Encode(makeFrame([]float64{1, 2}), 99)
	require.Error(t, err)
}

// TestEncodePropertyP1 is a generative rendition of P1 from spec.md §8:
// for arbitrary bin counts and magnitude values, the decompressed payload
// is always exactly 4*bins_count bytes.
func TestEncodePropertyP1(t *testing.T) {
	enc := NewEncoder()
	rapid.Check(t, func(t *rapid.T) {
		bins := rapid.IntRange(1, 2048).Draw(t, "bins")
		mags := make([]float64, bins)
		for i := range mags {
			mags[i] = rapid.Float64Range(-200, 0).Draw(t, "mag")
		}
		level := rapid.IntRange(1, 9).Draw(t, "level")

		wf, err := enc.Encode(makeFrame(mags), level)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if wf.OriginalSizeBytes != bins*4 {
			t.Fatalf("OriginalSizeBytes = %d, want %d", wf.OriginalSizeBytes, bins*4)
		}

		decoded, err := DecodeMagnitudes(wf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(decoded)*4 != bins*4 {
			t.Fatalf("decoded length mismatch")
		}
		for i, v := range mags {
			want := float64(float32(v))
			if math.Abs(want-decoded[i]) > 1e-6 {
				t.Fatalf("bin %d: got %v want %v", i, decoded[i], want)
			}
		}
	})
}
