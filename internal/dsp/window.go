// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowKind enumerates the window functions spec.md §3's AudioConfig
// accepts. Coefficients are precomputed once per (WindowKind, fftSize) and
// cached, per Design Note §9 ("Window function precomputation").
type WindowKind int

const (
	Hann WindowKind = iota
	Hamming
	Blackman
	Rectangular
)

// ParseWindowKind maps the config-file string to a WindowKind.
func ParseWindowKind(name string) (WindowKind, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "rectangular", "rect", "none":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("dsp: unknown window kind %q", name)
	}
}

type windowCacheKey struct {
	kind WindowKind
	size int
}

var (
	windowCacheMu sync.Mutex
	windowCache   = make(map[windowCacheKey][]float64)
)

// windowCoefficients returns the cached coefficient slice for (kind, size),
// computing and caching it on first use. Gonum's window functions scale a
// slice in place, so the cached copy must never be handed out for mutation
// — callers receive a defensive copy.
func windowCoefficients(kind WindowKind, size int) []float64 {
	key := windowCacheKey{kind, size}

	windowCacheMu.Lock()
	if cached, ok := windowCache[key]; ok {
		windowCacheMu.Unlock()
		out := make([]float64, size)
		copy(out, cached)
		return out
	}
	windowCacheMu.Unlock()

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch kind {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case Rectangular:
		// Already all-ones: the rectangular window applies no shaping.
	}

	cached := make([]float64, size)
	copy(cached, coeffs)

	windowCacheMu.Lock()
	windowCache[key] = cached
	windowCacheMu.Unlock()

	return coeffs
}
