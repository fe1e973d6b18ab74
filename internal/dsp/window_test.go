// SPDX-License-Identifier: MIT
package dsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWindowKind(t *testing.T) {
	cases := []struct {
		name string
		want WindowKind
	}{
		{"hann", Hann},
		{"Hanning", Hann},
		{"HAMMING", Hamming},
		{"blackman", Blackman},
		{"rectangular", Rectangular},
		{"rect", Rectangular},
		{"none", Rectangular},
	}
	for _, c := range cases {
		got, err := ParseWindowKind(c.name)
		require.NoErrorf(t, err, "name %q", c.name)
		require.Equal(t, c.want, got)
	}
}

func TestParseWindowKindUnknown(t *testing.T) {
	_, err := ParseWindowKind("triangular")
	require.Error(t, err)
}

func TestWindowCoefficientsCachedButDefensive(t *testing.T) {
	a := windowCoefficients(Hann, 64)
	b := windowCoefficients(Hann, 64)
	require.Equal(t, a, b)

	// Mutating one returned slice must never affect the other or the cache.
	a[0] = 999
	c := windowCoefficients(Hann, 64)
	require.NotEqual(t, a[0], c[0])
}

func TestWindowCoefficientsRectangularIsAllOnes(t *testing.T) {
	coeffs := windowCoefficients(Rectangular, 32)
	for i, v := range coeffs {
		require.Equalf(t, 1.0, v, "index %d", i)
	}
}

func TestWindowCoefficientsShapedWindowsTaperToEdges(t *testing.T) {
	for _, kind := range []WindowKind{Hann, Hamming, Blackman} {
		coeffs := windowCoefficients(kind, 256)
		mid := len(coeffs) / 2
		require.Greaterf(t, coeffs[mid], coeffs[0], "kind %d: center should exceed edge", kind)
	}
}
