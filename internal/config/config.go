package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the pipeline root
// when no explicit path is given.
const DefaultFileName = "pipeforge.yaml"

// Config holds every knob the engine needs. A Config value is immutable
// after Load; components receive it by value and never write to it.
type Config struct {
	// DeclFile is the file name that marks a directory as a module.
	DeclFile string `yaml:"decl_file"`

	// ExcludePrefixes lists directory name prefixes skipped during
	// recursive module traversal.
	ExcludePrefixes []string `yaml:"exclude_prefixes"`

	// Boundary is the directory above which module resolution never
	// searches. Empty means the filesystem root.
	Boundary string `yaml:"boundary"`

	// DefaultClass is the parallelizable class assigned to targets that do
	// not declare one. The zero convention follows GNU parallel's -j
	// argument, so "100%" means one job per core.
	DefaultClass string `yaml:"default_class"`

	// Classes maps a parallelizable class key to its concurrency ceiling
	// for the local executor. Classes without an entry fall back to
	// DefaultJobs.
	Classes map[string]int `yaml:"classes"`

	// DefaultJobs is the executor's concurrency ceiling for classes with
	// no explicit entry in Classes. Zero means one job per CPU.
	DefaultJobs int `yaml:"default_jobs"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DeclFile:        "pipeline.hcl",
		ExcludePrefixes: []string{"#", "_", "."},
		DefaultClass:    "100%",
		Classes:         map[string]int{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file over the defaults, expanding
// environment variables in the file body. A missing file is not an error:
// the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.DeclFile, validation.Required),
		validation.Field(&c.DefaultClass, validation.Required),
		validation.Field(&c.DefaultJobs, validation.Min(0)),
	); err != nil {
		return err
	}
	for class, jobs := range c.Classes {
		if jobs < 1 {
			return fmt.Errorf("class %q: concurrency ceiling must be at least 1, got %d", class, jobs)
		}
	}
	return c.Log.Validate()
}

// Validate validates the logging configuration.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.Required, validation.In("text", "json")),
	)
}

// Jobs returns the executor concurrency ceiling for a parallelizable class.
func (c Config) Jobs(class string) int {
	if n, ok := c.Classes[class]; ok {
		return n
	}
	if c.DefaultJobs > 0 {
		return c.DefaultJobs
	}
	return runtime.NumCPU()
}
