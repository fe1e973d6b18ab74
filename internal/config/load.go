// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"strconv"

	applog "ultrasonic/internal/log"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, falling back to Default() when path is
// empty and no config.yaml is found in the working directory, applies
// environment overrides, validates, and returns the result. This mirrors
// the teacher's LoadConfig in internal/config/yaml.go: defaults literal,
// optional file, env overrides, validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &loadError{op: "read", path: path, err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &loadError{op: "parse", path: path, err: err}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, &loadError{op: "validate", path: path, err: err}
	}

	return cfg, nil
}

type loadError struct {
	op   string
	path string
	err  error
}

func (e *loadError) Error() string {
	if e.path == "" {
		return "config: " + e.op + ": " + e.err.Error()
	}
	return "config: " + e.op + " " + e.path + ": " + e.err.Error()
}

func (e *loadError) Unwrap() error { return e.err }

// applyEnvOverrides overlays a small set of ULTRASONIC_-prefixed variables
// on top of the file-loaded config, the same way the teacher's
// applyEnvOverrides layers ENV_UDP_* overrides onto its TransportConfig.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("ULTRASONIC_DEBUG"); ok {
		parseBoolEnv(v, &cfg.Debug)
	}
	if v, ok := os.LookupEnv("ULTRASONIC_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("ULTRASONIC_LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ULTRASONIC_REGISTRY_PATH"); ok {
		cfg.Registry.Path = v
	}
	if v, ok := os.LookupEnv("ULTRASONIC_SAMPLE_RATE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audio.SampleRate = n
			applog.Infof("config: overriding audio.sample_rate from env: %d", n)
		}
	}
	if v, ok := os.LookupEnv("ULTRASONIC_FFT_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audio.FFTSize = n
			applog.Infof("config: overriding audio.fft_size from env: %d", n)
		}
	}
	if v, ok := os.LookupEnv("ULTRASONIC_TARGET_FPS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.TargetFps = n
			applog.Infof("config: overriding stream.target_fps from env: %d", n)
		}
	}
}
