// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Probe struct {
	Interval   Duration `yaml:"interval"`
	WindowSize int      `yaml:"window_size"`
}

type Thresholds struct {
	PSICPUSomeHigh    float64 `yaml:"psi_cpu_some_high"`
	PSIIOSomeHigh     float64 `yaml:"psi_io_some_high"`
	SchedLatencyP99Ms float64 `yaml:"sched_latency_p99_ms"`
	UILoopP95Ms       float64 `yaml:"ui_loop_p95_ms"`
	NoisyCPUShare     float64 `yaml:"noisy_cpu_share"`
}

type Hysteresis struct {
	MinChangeInterval Duration `yaml:"min_change_interval"`
	MinRankDistance   int      `yaml:"min_rank_distance"`
}

type Cache struct {
	TTL      Duration `yaml:"ttl"`
	Capacity int      `yaml:"capacity"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Config struct {
	// Interval between scheduling cycles.
	Interval   Duration   `yaml:"interval"`
	Probe      Probe      `yaml:"probe"`
	Thresholds Thresholds `yaml:"thresholds"`
	Hysteresis Hysteresis `yaml:"hysteresis"`
	Cache      Cache      `yaml:"cache"`
	Logging    Logging    `yaml:"logging"`
}

// Default returns the stock configuration the daemon runs with when no
// file is given.
func Default() *Config {
	return &Config{
		Interval: Duration(2 * time.Second),
		Probe: Probe{
			Interval:   Duration(5 * time.Millisecond),
			WindowSize: 1000,
		},
		Thresholds: Thresholds{
			PSICPUSomeHigh:    0.6,
			PSIIOSomeHigh:     0.4,
			SchedLatencyP99Ms: 20.0,
			UILoopP95Ms:       16.67,
			NoisyCPUShare:     0.7,
		},
		Hysteresis: Hysteresis{
			MinChangeInterval: Duration(5 * time.Second),
			MinRankDistance:   1,
		},
		Cache: Cache{
			TTL:      Duration(30 * time.Second),
			Capacity: 4096,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a YAML file over the defaults, so a partial file only
// overrides what it names.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Interval.Std() <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval.Std())
	}
	if c.Probe.Interval.Std() <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.Probe.Interval.Std())
	}
	if c.Probe.WindowSize < 2 {
		return fmt.Errorf("probe window size must be at least 2, got %d", c.Probe.WindowSize)
	}
	if c.Thresholds.PSICPUSomeHigh <= 0 || c.Thresholds.PSICPUSomeHigh > 1 {
		return fmt.Errorf("psi_cpu_some_high must be in (0,1], got %g", c.Thresholds.PSICPUSomeHigh)
	}
	if c.Thresholds.PSIIOSomeHigh <= 0 || c.Thresholds.PSIIOSomeHigh > 1 {
		return fmt.Errorf("psi_io_some_high must be in (0,1], got %g", c.Thresholds.PSIIOSomeHigh)
	}
	if c.Thresholds.SchedLatencyP99Ms <= 0 {
		return fmt.Errorf("sched_latency_p99_ms must be positive, got %g", c.Thresholds.SchedLatencyP99Ms)
	}
	if c.Thresholds.UILoopP95Ms <= 0 {
		return fmt.Errorf("ui_loop_p95_ms must be positive, got %g", c.Thresholds.UILoopP95Ms)
	}
	if c.Thresholds.NoisyCPUShare <= 0 || c.Thresholds.NoisyCPUShare > 1 {
		return fmt.Errorf("noisy_cpu_share must be in (0,1], got %g", c.Thresholds.NoisyCPUShare)
	}
	if c.Hysteresis.MinRankDistance < 1 {
		return fmt.Errorf("min_rank_distance must be at least 1, got %d", c.Hysteresis.MinRankDistance)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	return nil
}
