// Package config loads the benchmark configuration: which backends to run,
// in which order, and under which measurement parameters.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geospeed/geospeed/harness"
	"github.com/geospeed/geospeed/sampler"
)

// Duration wraps time.Duration with YAML support for values like "30m".
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

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Backend registers one benchmark target. List order in the file is
// registration order, which fixes tie-breaks in the report.
type Backend struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Env     []string `yaml:"env,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`

	// Persistent marks engines writing through an on-disk persisted mode.
	Persistent bool `yaml:"persistent,omitempty"`
	// LeaksScratch marks engines known to orphan uniquely named temp
	// files; their payloads must list them for cleanup.
	LeaksScratch bool `yaml:"leaks_scratch,omitempty"`

	// Warmup and Measured override the global run counts when set.
	Warmup   *int `yaml:"warmup,omitempty"`
	Measured *int `yaml:"measured,omitempty"`
}

// Runs holds the measurement parameters shared by all backends.
type Runs struct {
	Warmup         int      `yaml:"warmup"`
	Measured       int      `yaml:"measured"`
	Timeout        Duration `yaml:"timeout"`
	SampleInterval Duration `yaml:"sample_interval"`
}

// Data describes where the input datasets live and what to look for.
type Data struct {
	Dir    string `yaml:"dir"`
	LayerA string `yaml:"layer_a"`
	LayerB string `yaml:"layer_b"`
}

// Config is the full benchmark configuration.
type Config struct {
	Backends   []Backend `yaml:"backends"`
	Runs       Runs      `yaml:"runs"`
	Data       Data      `yaml:"data"`
	ScratchDir string    `yaml:"scratch_dir"`
	OutputDir  string    `yaml:"output_dir"`
}

// Default returns the documented defaults: warmup=3 and measured=10 match
// the historical manual protocol; the 10ms sample interval catches
// transient peaks without perturbing timing.
func Default() Config {
	return Config{
		Runs: Runs{
			Warmup:         harness.DefaultWarmup,
			Measured:       harness.DefaultMeasured,
			Timeout:        Duration(30 * time.Minute),
			SampleInterval: Duration(sampler.DefaultInterval),
		},
		Data: Data{
			Dir:    "ALKIS",
			LayerA: "GebauedeBauwerk.shp",
			LayerB: "NutzungFlurstueck.shp",
		},
		ScratchDir: "tmp",
		OutputDir:  "benchmarks",
	}
}

// Load reads path on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants the harness depends on.
func (c *Config) Validate() error {
	if c.Runs.Measured < 1 {
		return fmt.Errorf("runs.measured must be at least 1, got %d", c.Runs.Measured)
	}
	if c.Runs.Warmup < 0 {
		return fmt.Errorf("runs.warmup must not be negative, got %d", c.Runs.Warmup)
	}
	if c.Runs.SampleInterval < 0 {
		return fmt.Errorf("runs.sample_interval must not be negative")
	}

	seen := map[string]bool{}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name must be set", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if len(b.Command) == 0 {
			return fmt.Errorf("backend %s: command must be set", b.Name)
		}
		if b.Measured != nil && *b.Measured < 1 {
			return fmt.Errorf("backend %s: measured override must be at least 1", b.Name)
		}
		if b.Warmup != nil && *b.Warmup < 0 {
			return fmt.Errorf("backend %s: warmup override must not be negative", b.Name)
		}
	}
	return nil
}
