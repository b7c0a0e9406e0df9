// Package config loads and validates the optional .runharness YAML file.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/deixis/runharness/harness"
	"github.com/deixis/runharness/runner"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked up at the
// repository root.
const FileName = ".runharness"

// Default values for harness configuration.
const (
	DefaultTimeout = 5 * time.Minute
	DefaultReports = 5
)

// Config holds the parsed .runharness configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int               `yaml:"version"`
	RawTimeout   string            `yaml:"timeout"`     // e.g. "5m", "30s"
	RawMaxOutput int               `yaml:"max_output"`  // bytes per stream, 0 keeps everything
	RawWrapper   string            `yaml:"wrapper_var"` // variable holding the execution wrapper
	Name         string            `yaml:"name"`        // program name shown in diagnostics
	Env          map[string]string `yaml:"env"`         // overrides applied to every run
	RawReports   int               `yaml:"reports"`     // reports kept in memory
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured per-stream output cap, or 0 when
// output is kept in full.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return 0
}

// WrapperVar returns the name of the execution wrapper variable.
func (c *Config) WrapperVar() string {
	if c.RawWrapper != "" {
		return c.RawWrapper
	}
	return runner.DefaultWrapperVar
}

// Reports returns the in-memory report capacity.
func (c *Config) Reports() int {
	if c.RawReports > 0 {
		return c.RawReports
	}
	return DefaultReports
}

// Harness builds a Harness running commands from dir. A zero timeout
// override keeps the configured timeout.
func (c *Config) Harness(dir string, timeoutOverride time.Duration, logger *log.Logger) *harness.Harness {
	timeout := c.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}
	opts := []harness.Option{
		harness.WithRunner(&runner.Runner{
			WrapperVar: c.WrapperVar(),
			Dir:        dir,
			MaxOutput:  c.MaxOutputBytes(),
		}),
		harness.WithTimeout(timeout),
		harness.WithBaseEnv(c.Env),
	}
	if c.Name != "" {
		opts = append(opts, harness.WithName(c.Name))
	}
	if logger != nil {
		opts = append(opts, harness.WithLogger(logger))
	}
	return harness.New(opts...)
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing go.mod; falls back to workspace
}

// Load reads the .runharness file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for go.mod. If no .runharness file exists, a default Config is
// returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// No go.mod found; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if cfg.RawTimeout != "" {
		if _, err := time.ParseDuration(cfg.RawTimeout); err != nil {
			return nil, fmt.Errorf("parsing %s: timeout: %w", FileName, err)
		}
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

// findRepoRoot walks upward from dir looking for a directory containing go.mod.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
