// Package config loads and validates the YAML run descriptor that
// drives one harness invocation: dataset, realtime hints, benchmark
// parameters, output, and the ordered plugin list.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WestonVoglesonger/cortex/internal/cortexerr"
)

// Dataset describes the recording being replayed.
type Dataset struct {
	Path         string `yaml:"path"`
	SampleFormat string `yaml:"sample_format"`
	Channels     uint32 `yaml:"channels"`
	SampleRateHz uint32 `yaml:"sample_rate_hz"`
}

// RealtimeHints are advisory scheduling preferences; the core stores
// them but never enforces or applies them. Only DeadlineMs is read, by
// validation.
type RealtimeHints struct {
	Policy       string `yaml:"policy"` // "fifo", "rr", "deadline", "other"
	Priority     int    `yaml:"priority"`
	AffinityMask uint64 `yaml:"affinity_mask"`
	DeadlineMs   int    `yaml:"deadline_ms"`
}

// BenchmarkParams controls the replay/repeat loop.
type BenchmarkParams struct {
	DurationSeconds float64 `yaml:"duration_seconds"`
	Repeats         int     `yaml:"repeats"`
	WarmupSeconds   float64 `yaml:"warmup_seconds"`
	BackgroundLoad  string  `yaml:"background_load"` // "idle", "medium", "heavy", or ""
}

// Output describes where and how telemetry is written.
type Output struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"` // "ndjson" or "csv"
}

// Runtime is a plugin's per-window geometry and dtype.
type Runtime struct {
	W            uint32 `yaml:"W"`
	H            uint32 `yaml:"H"`
	C            uint32 `yaml:"C"`
	Dtype        string `yaml:"dtype"`
	AllowInPlace bool   `yaml:"allow_in_place"`
}

// Plugin is one entry in the ordered plugin list.
type Plugin struct {
	Name            string  `yaml:"name"`
	Status          string  `yaml:"status"` // "draft" or "ready"
	SpecURI         string  `yaml:"spec_uri"`
	AdapterPath     string  `yaml:"adapter_path"`
	TransportURI    string  `yaml:"transport_uri"`
	Runtime         Runtime `yaml:"runtime"`
	KernelParams    []byte  `yaml:"kernel_params"`
	CalibrationPath string  `yaml:"calibration_path"`
}

// Config is the fully parsed and validated run descriptor.
type Config struct {
	Dataset   Dataset         `yaml:"dataset"`
	Realtime  RealtimeHints   `yaml:"realtime"`
	Benchmark BenchmarkParams `yaml:"benchmark"`
	Output    Output          `yaml:"output"`
	Plugins   []Plugin        `yaml:"plugins"`
}

// Load reads path, unmarshals it as YAML, applies the environment
// overrides, fills per-plugin runtime defaults, and validates before
// returning.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cortexerr.New("config_load", cortexerr.INVALID_CONFIG, fmt.Sprintf("read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cortexerr.New("config_load", cortexerr.INVALID_CONFIG, fmt.Sprintf("parse %s: %v", path, err))
	}

	applyEnvOverrides(&cfg)
	applyRuntimeDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyRuntimeDefaults(cfg *Config) {
	for i := range cfg.Plugins {
		p := &cfg.Plugins[i]
		if p.Runtime.W == 0 {
			p.Runtime.W = 160
		}
		if p.Runtime.H == 0 {
			p.Runtime.H = 80
		}
		if p.Runtime.C == 0 {
			p.Runtime.C = cfg.Dataset.Channels
		}
		if p.Runtime.Dtype == "" {
			p.Runtime.Dtype = "float32"
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Dataset.SampleRateHz == 0 {
		return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG, "dataset.sample_rate_hz must be > 0")
	}
	if cfg.Dataset.Channels == 0 {
		return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG, "dataset.channels must be > 0")
	}

	for _, p := range cfg.Plugins {
		if !(p.Runtime.H > 0 && p.Runtime.H <= p.Runtime.W) {
			return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG,
				fmt.Sprintf("plugin %q: runtime.H must satisfy 0 < H <= W", p.Name))
		}
		if p.Runtime.C != cfg.Dataset.Channels {
			return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG,
				fmt.Sprintf("plugin %q: runtime.channels must equal dataset.channels", p.Name))
		}
		if p.Runtime.Dtype != "float32" {
			return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG,
				fmt.Sprintf("plugin %q: only float32 sample dtype is supported", p.Name))
		}
		minDeadlineMs := 1000.0 * float64(p.Runtime.H) / float64(cfg.Dataset.SampleRateHz)
		if float64(cfg.Realtime.DeadlineMs) < minDeadlineMs {
			return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG,
				fmt.Sprintf("plugin %q: realtime.deadline_ms must be >= 1000*H/Fs (%.3f)", p.Name, minDeadlineMs))
		}
		if p.Status == "ready" && p.SpecURI == "" {
			return cortexerr.New("config_validate", cortexerr.INVALID_CONFIG,
				fmt.Sprintf("plugin %q: status=ready requires spec_uri", p.Name))
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORTEX_OUTPUT_DIR"); v != "" {
		cfg.Output.Directory = v
	}
	if v := os.Getenv("CORTEX_TRANSPORT_URI"); v != "" {
		for i := range cfg.Plugins {
			cfg.Plugins[i].TransportURI = v
		}
	}
	if v := os.Getenv("CORTEX_KERNEL_FILTER"); v != "" {
		allow := make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			allow[strings.TrimSpace(name)] = true
		}
		filtered := cfg.Plugins[:0]
		for _, p := range cfg.Plugins {
			if allow[p.Name] {
				filtered = append(filtered, p)
			}
		}
		cfg.Plugins = filtered
	}
}
