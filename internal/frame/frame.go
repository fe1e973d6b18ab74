// SPDX-License-Identifier: MIT

// Package frame defines the internal SpectrumFrame produced by the DSP
// stage and the WireFrame it is encoded into for transport, per spec.md
// §3 and §6.
package frame

// SpectrumFrame is the internal, uncompressed representation of one
// analyzed FFT window, as produced by internal/dsp and consumed by
// internal/throttle and internal/frame's own Encoder.
type SpectrumFrame struct {
	SequenceID      uint64
	TimestampMs     int64
	SampleRate      int
	FFTSize         int
	BinsCount       int
	MagnitudesDb    []float64
	PeakFrequencyHz float64
	PeakMagnitudeDb float64
	SplDb           float64
	Fps             float64
}

// WireFrame is the JSON object emitted per SSE event / WebSocket message,
// matching the wire format in spec.md §6 field-for-field.
type WireFrame struct {
	SequenceID        uint64  `json:"sequence_id"`
	TimestampMs       int64   `json:"timestamp"`
	SampleRate        int     `json:"sample_rate"`
	FFTSize           int     `json:"fft_size"`
	BinsCount         int     `json:"bins_count"`
	PeakFrequencyHz   float64 `json:"peak_frequency_hz"`
	PeakMagnitudeDb   float64 `json:"peak_magnitude_db"`
	SplDb             float64 `json:"spl_db"`
	Fps               float64 `json:"fps"`
	DataCompressed    string  `json:"data_compressed"`
	DataSizeBytes     int     `json:"data_size_bytes"`
	OriginalSizeBytes int     `json:"original_size_bytes"`
}
