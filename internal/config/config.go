// SPDX-License-Identifier: MIT

// Package config defines the explicit configuration value threaded through
// DeviceManager construction. It is loaded the way the teacher's
// internal/config/yaml.go loads its Config: a defaults struct literal,
// overlaid by an optional YAML file, overlaid by environment variables,
// then validated once before use. Unlike the teacher, there is exactly one
// Config type in this package (the teacher accidentally carries two types
// of the same name across config.go/yaml.go; see DESIGN.md).
//
// Environment parsing and file-path resolution belong here, at the
// boundary the façade constructs from — the DSP/streaming core never reads
// package-level globals or environment variables directly.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Window function kinds accepted by AudioConfig.WindowKind.
const (
	WindowHann        = "hann"
	WindowHamming     = "hamming"
	WindowBlackman    = "blackman"
	WindowRectangular = "rectangular"
)

// Config is the root configuration value for the service.
type Config struct {
	Debug    bool           `yaml:"debug"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Audio    AudioConfig    `yaml:"audio"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ServerConfig configures the control/stream façade's listen endpoint.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// RegistryConfig configures DeviceRegistry persistence.
type RegistryConfig struct {
	Path            string `yaml:"path"`
	StaleAfterScans int    `yaml:"stale_after_scans"`
}

// AudioConfig mirrors spec.md §3's AudioConfig: the parameters that shape
// the capture/windowing stage. Changing FFTSize, SampleRate, BlockSize or
// DeviceNames on a running pipeline requires a restart (see
// internal/pipeline); WindowKind and OverlapFraction can be applied hot via
// DevicePipeline.UpdateAudioHotParams.
type AudioConfig struct {
	SampleRate      int      `yaml:"sample_rate"`
	FFTSize         int      `yaml:"fft_size"`
	BlockSize       int      `yaml:"block_size"`
	WindowKind      string   `yaml:"window_kind"`
	OverlapFraction float64  `yaml:"overlap_fraction"`
	DeviceNames     []string `yaml:"device_names"`
}

// StreamConfig mirrors spec.md §3's StreamConfig: the throttling and
// encoding parameters. All fields are hot except none — every StreamConfig
// field can be applied without a pipeline restart.
type StreamConfig struct {
	TargetFps            int     `yaml:"target_fps"`
	CompressionLevel     int     `yaml:"compression_level"`
	MagnitudeThresholdDb float64 `yaml:"magnitude_threshold_db"`
	ThresholdDb          float64 `yaml:"threshold_db"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	EnableSmartSkip      bool    `yaml:"enable_smart_skip"`
	EnableAdaptiveFps    bool    `yaml:"enable_adaptive_fps"`
	MinAdaptiveFps       int     `yaml:"min_adaptive_fps"`
	MaxAdaptiveFps       int     `yaml:"max_adaptive_fps"`
}

// Default returns the configuration defaults enumerated in spec.md §6.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr: "0.0.0.0:8380",
		},
		Registry: RegistryConfig{
			Path:            "device_mapping.json",
			StaleAfterScans: 5,
		},
		Audio: AudioConfig{
			SampleRate:      384000,
			FFTSize:         8192,
			BlockSize:       2048,
			WindowKind:      WindowHann,
			OverlapFraction: 0.5,
			DeviceNames:     nil,
		},
		Stream: StreamConfig{
			TargetFps:            30,
			CompressionLevel:     6,
			MagnitudeThresholdDb: -80,
			ThresholdDb:          -100,
			SimilarityThreshold:  0.95,
			EnableSmartSkip:      true,
			EnableAdaptiveFps:    true,
			MinAdaptiveFps:       5,
			MaxAdaptiveFps:       60,
		},
	}
}

// Validate enforces the ranges spec.md §3 places on AudioConfig and
// StreamConfig. It is called once at config-apply time; callers that build
// a Config by hand (tests, the façade's partial-update path) should call it
// before handing the value to DeviceManager/DevicePipeline.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if c.Registry.StaleAfterScans <= 0 {
		return fmt.Errorf("registry config: stale_after_scans must be positive, got %d", c.Registry.StaleAfterScans)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if !isPowerOfTwo(a.FFTSize) || a.FFTSize < 256 || a.FFTSize > 65536 {
		return fmt.Errorf("fft_size must be a power of two in [256, 65536], got %d", a.FFTSize)
	}
	if a.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", a.BlockSize)
	}
	switch strings.ToLower(a.WindowKind) {
	case WindowHann, WindowHamming, WindowBlackman, WindowRectangular:
	default:
		return fmt.Errorf("window_kind must be one of hann|hamming|blackman|rectangular, got %q", a.WindowKind)
	}
	if a.OverlapFraction < 0 || a.OverlapFraction > 0.9 {
		return fmt.Errorf("overlap_fraction must be in [0, 0.9], got %f", a.OverlapFraction)
	}
	return nil
}

func (s *StreamConfig) Validate() error {
	if s.TargetFps < 1 || s.TargetFps > 120 {
		return fmt.Errorf("target_fps must be in [1, 120], got %d", s.TargetFps)
	}
	if s.CompressionLevel < 1 || s.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be in [1, 9], got %d", s.CompressionLevel)
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %f", s.SimilarityThreshold)
	}
	if s.EnableAdaptiveFps {
		if s.MinAdaptiveFps < 1 {
			return fmt.Errorf("min_adaptive_fps must be >= 1, got %d", s.MinAdaptiveFps)
		}
		if s.MaxAdaptiveFps < s.MinAdaptiveFps {
			return fmt.Errorf("max_adaptive_fps (%d) must be >= min_adaptive_fps (%d)", s.MaxAdaptiveFps, s.MinAdaptiveFps)
		}
	}
	return nil
}

// Clone returns a deep-enough copy for the snapshot discipline described in
// spec.md §5: the processor hot path takes a cheap copy per frame, writers
// publish a new value atomically. DeviceNames is the only reference field.
func (a AudioConfig) Clone() AudioConfig {
	if a.DeviceNames == nil {
		return a
	}
	cp := a
	cp.DeviceNames = append([]string(nil), a.DeviceNames...)
	return cp
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// parseBoolEnv is a small helper shared by applyEnvOverrides; unset or
// unparsable values leave the existing field untouched.
func parseBoolEnv(val string, dst *bool) {
	if b, err := strconv.ParseBool(val); err == nil {
		*dst = b
	}
}
