// Package config loads the optional engine configuration file and the
// worker-list file. CLI flags override file values; validation happens
// here so the dispatcher only ever sees normalized settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aengelke/mishegos/internal/logging"
)

// File is the yaml engine configuration.
type File struct {
	// Mutator names the candidate generator; empty selects the default.
	Mutator string `yaml:"mutator"`

	// ThreadMode runs decoders as goroutines instead of child processes.
	ThreadMode bool `yaml:"thread_mode"`

	Filter FilterConfig `yaml:"filter"`
	Output OutputConfig `yaml:"output"`

	// RateLimit caps candidate generation in candidates per second.
	// 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// FilterConfig mirrors the -s/-n flags. Min/Max are pointers so an absent
// field is distinguishable from an explicit 0; negative values resolve
// against the worker count later.
type FilterConfig struct {
	MinSuccess   *int `yaml:"min_success"`
	MaxSuccess   *int `yaml:"max_success"`
	NdecodedSame bool `yaml:"ndecoded_same"`
}

// OutputConfig directs the triage stream.
type OutputConfig struct {
	// Path of the stream file; empty means stdout.
	Path string `yaml:"path"`

	// Compression is "", "none", "gzip" or "zstd".
	Compression string `yaml:"compression"`

	// Uring writes the stream through io_uring (needs the giouring build
	// tag and Path set).
	Uring bool `yaml:"io_uring"`
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0, got %v", f.RateLimit)
	}
	if _, err := logging.ParseLevel(f.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch f.Output.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("unknown output.compression %q", f.Output.Compression)
	}
	if f.Output.Uring && f.Output.Path == "" {
		return fmt.Errorf("output.io_uring requires output.path")
	}
	return nil
}
