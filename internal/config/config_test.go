package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[run]
patterns = ["spec_*.star"]
exclude = ["third_party"]
parallel = 4
fail_fast = true
verbose = true
markers = "not slow"
cache_dir = "cache"
debounce = "250ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := RunConfig{
		Patterns: []string{"spec_*.star"},
		Exclude:  []string{"third_party"},
		Parallel: 4,
		FailFast: true,
		Verbose:  true,
		Markers:  "not slow",
		CacheDir: filepath.Join(dir, "cache"),
		Debounce: Duration{250 * time.Millisecond},
	}
	if diff := cmp.Diff(want, cfg.Run); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, "[run]\nverbose = true\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.Parallel != 1 {
		t.Errorf("Parallel = %d, want default 1", cfg.Run.Parallel)
	}
	if cfg.Run.CacheDir != filepath.Join(dir, ".starfix_cache") {
		t.Errorf("CacheDir = %q", cfg.Run.CacheDir)
	}
	if cfg.Run.Debounce.Duration != 100*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Run.Debounce)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[run\n", "parsing TOML"},
		{"unknown key", "[run]\ntimeout = \"1s\"\n", "unknown key"},
		{"bad duration", "[run]\ndebounce = \"soon\"\n", "invalid duration"},
		{"bad parallel", "[run]\nparallel = 0\n", "at least 1"},
		{"wrong type", "[run]\nparallel = \"four\"\n", "parsing TOML"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load error = %v, want it to contain %q", err, tc.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestDiscoverWalksUpToGitRoot(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	sub := filepath.Join(repo, "pkg", "calc")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, "")

	// A config above the git root is never used.
	writeConfig(t, root, "[run]\nverbose = true\n")

	cfg, path, err := Discover(sub)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if path != "" || cfg.Run.Verbose {
		t.Errorf("Discover crossed the git root: path=%q", path)
	}
	if cfg.Run.CacheDir != filepath.Join(sub, ".starfix_cache") {
		t.Errorf("default CacheDir = %q", cfg.Run.CacheDir)
	}

	want := writeConfig(t, repo, "[run]\nfail_fast = true\n")
	cfg, path, err = Discover(sub)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if path != want || !cfg.Run.FailFast {
		t.Errorf("Discover = (%+v, %q), want config from %q", cfg.Run, path, want)
	}
}

func TestDiscoverEnvOverride(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	writeConfig(t, dir, "[run]\nverbose = true\n")
	envPath := filepath.Join(other, "custom.toml")
	if err := os.WriteFile(envPath, []byte("[run]\nparallel = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, envPath)

	cfg, path, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if path != envPath || cfg.Run.Parallel != 3 || cfg.Run.Verbose {
		t.Errorf("Discover = (%+v, %q), want env config", cfg.Run, path)
	}

	t.Setenv(EnvConfig, filepath.Join(other, "missing.toml"))
	if _, _, err := Discover(dir); err == nil || !strings.Contains(err.Error(), EnvConfig) {
		t.Errorf("Discover error = %v, want it to name %s", err, EnvConfig)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v", d.Duration)
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText = %q", text)
	}
	if err := d.UnmarshalText(nil); err != nil || d.Duration != 0 {
		t.Errorf("empty text = (%v, %v)", d.Duration, err)
	}
}
