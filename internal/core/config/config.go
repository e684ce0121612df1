package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from either an integer
// nanosecond count or a "50ms" style string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ns int64
	if err := node.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", node.Value, err)
	}
	*d = Duration(v)
	return nil
}

// Config carries the engine's tunables. Zero values are filled in from
// Default by Validate, so a partial YAML file is fine.
type Config struct {
	// ArenaSize is the byte size of the world's arena. All component
	// storage and dynamic payloads live inside it.
	ArenaSize int `yaml:"arena_size"`
	// InitialEntityCapacity pre-sizes per-entity bookkeeping.
	InitialEntityCapacity int `yaml:"initial_entity_capacity"`
	// LogLevel is one of debug, info, warn, error, silent.
	LogLevel string `yaml:"log_level"`
	// FixedTimestep is the simulation step driving the fixed-update
	// schedule.
	FixedTimestep Duration `yaml:"fixed_timestep"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ArenaSize:             64 << 20,
		InitialEntityCapacity: 1024,
		LogLevel:              "info",
		FixedTimestep:         Duration(time.Second / 60),
	}
}

// Load reads a YAML config file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills unset fields from Default and rejects values the
// engine cannot run with.
func (c *Config) Validate() error {
	def := Default()
	if c.ArenaSize == 0 {
		c.ArenaSize = def.ArenaSize
	}
	if c.InitialEntityCapacity == 0 {
		c.InitialEntityCapacity = def.InitialEntityCapacity
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.FixedTimestep == 0 {
		c.FixedTimestep = def.FixedTimestep
	}

	if c.ArenaSize < 4096 {
		return fmt.Errorf("config: arena_size %d below minimum 4096", c.ArenaSize)
	}
	if c.ArenaSize > 1<<31 {
		return fmt.Errorf("config: arena_size %d exceeds 32-bit addressing", c.ArenaSize)
	}
	if c.InitialEntityCapacity < 0 {
		return fmt.Errorf("config: initial_entity_capacity %d is negative", c.InitialEntityCapacity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "silent":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.FixedTimestep <= 0 {
		return fmt.Errorf("config: fixed_timestep must be positive")
	}
	return nil
}
