// Package config loads starfix.toml.
//
// The file is found by walking up from the working directory, stopping at
// the enclosing git repository root. STARFIX_CONFIG or the -config flag
// name a file explicitly. Command-line flags always take precedence over
// values read here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked for during discovery.
const FileName = "starfix.toml"

// EnvConfig is the environment variable naming a config file.
const EnvConfig = "STARFIX_CONFIG"

// Config is the contents of starfix.toml.
type Config struct {
	// Run configures test collection and execution.
	Run RunConfig `toml:"run"`
}

// RunConfig is the [run] section.
type RunConfig struct {
	// Patterns are the test file base-name patterns.
	Patterns []string `toml:"patterns"`

	// Exclude lists directory names skipped during discovery.
	Exclude []string `toml:"exclude"`

	// Parallel bounds concurrent file loading.
	Parallel int `toml:"parallel"`

	// FailFast stops on the first failed case.
	FailFast bool `toml:"fail_fast"`

	// Verbose prints durations and captured output.
	Verbose bool `toml:"verbose"`

	// Markers is the default marker expression, as for -m.
	Markers string `toml:"markers"`

	// CacheDir holds the last-failed cache, relative to the config file.
	CacheDir string `toml:"cache_dir"`

	// Debounce is the watch mode quiet period (e.g. "200ms").
	Debounce Duration `toml:"debounce"`
}

// Duration wraps time.Duration for TOML string parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return nil, nil
	}
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Parallel: 1,
			CacheDir: ".starfix_cache",
			Debounce: Duration{100 * time.Millisecond},
		},
	}
}

// Load reads a config file. Unset values keep their defaults and a
// relative cache_dir is resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing TOML config %s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.Run.Parallel < 1 {
		return nil, fmt.Errorf("%s: run.parallel must be at least 1, got %d", path, cfg.Run.Parallel)
	}

	if !filepath.IsAbs(cfg.Run.CacheDir) {
		cfg.Run.CacheDir = filepath.Join(filepath.Dir(path), cfg.Run.CacheDir)
	}
	return cfg, nil
}

// Discover finds and loads the config for startDir.
//
// Resolution order:
//  1. STARFIX_CONFIG, if set
//  2. starfix.toml in startDir or a parent, up to the git root
//
// It returns the config and the path it was read from. Without a file it
// returns Default() with a cache dir under startDir and an empty path.
func Discover(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := Load(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	gitRoot := findGitRoot(absDir)
	for dir := absDir; ; {
		path := filepath.Join(dir, FileName)
		if fileExists(path) {
			cfg, err := Load(path)
			if err != nil {
				return nil, "", err
			}
			return cfg, path, nil
		}

		if dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	cfg := Default()
	cfg.Run.CacheDir = filepath.Join(absDir, cfg.Run.CacheDir)
	return cfg, "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// findGitRoot returns the nearest directory at or above startDir holding
// .git, or "" outside a repository.
func findGitRoot(startDir string) string {
	for dir := startDir; ; {
		if fileExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
