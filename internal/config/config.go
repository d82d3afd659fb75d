// Package config provides configuration loading and defaults for semsync.
//
// Configuration is loaded from an optional .semsync.toml file in the
// workspace root. The package covers manifest discovery, the version-control
// backend, the baseline source, the monotonicity policy and logging, with
// defaults that match a plain Alire workspace tracking origin/main.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/semsync/internal/atomicfile"
	"tools.zach/dev/semsync/internal/logger"
	"tools.zach/dev/semsync/internal/paths"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level configuration.
type Config struct {
	// Manifest holds manifest discovery settings.
	Manifest ManifestConfig `toml:"manifest"`
	// Git holds version-control backend settings.
	Git GitConfig `toml:"git"`
	// Baseline holds settings for locating the monotonicity baseline.
	Baseline BaselineConfig `toml:"baseline"`
	// Check holds the policy applied to detected problems.
	Check CheckConfig `toml:"check"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// ManifestConfig holds manifest discovery settings.
type ManifestConfig struct {
	// Name is the manifest file name searched for recursively.
	Name string `toml:"name"`
	// Canonical is the workspace-relative manifest read at the baseline commit.
	Canonical string `toml:"canonical"`
	// Include lists explicit workspace-relative manifests. When non-empty no
	// discovery happens.
	Include []string `toml:"include,omitempty"`
	// Exclude lists doublestar patterns for directories or files to skip.
	Exclude []string `toml:"exclude"`
}

// GitConfig holds version-control backend settings.
type GitConfig struct {
	// Backend is "cli" (shell out to git) or "go-git" (in-process).
	Backend string `toml:"backend"`
	// Binary is the git executable used by the cli backend.
	Binary string `toml:"binary"`
	// Trunk is the ref whose merge-base with HEAD provides the baseline.
	Trunk string `toml:"trunk"`
	// TagMatch restricts which tags count as releases (glob, e.g. "v*").
	TagMatch string `toml:"tag_match,omitempty"`
}

// BaselineConfig holds settings for locating the monotonicity baseline.
type BaselineConfig struct {
	// Source is "git" (merge-base), "url" (HTTP fetch) or "none".
	Source string `toml:"source"`
	// URL is fetched when Source is "url". Empty derives a GitHub raw URL
	// from the origin remote and the trunk branch.
	URL string `toml:"url,omitempty"`
	// Required makes an unparseable baseline fatal instead of skipping the check.
	Required bool `toml:"required"`
}

// CheckConfig holds the policy applied to detected problems.
type CheckConfig struct {
	// FailOnRegression turns a monotonicity violation into a non-zero exit.
	FailOnRegression bool `toml:"fail_on_regression"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// File additionally writes the log to this path when non-empty.
	File string `toml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{
			Name:      paths.ManifestName,
			Canonical: paths.ManifestName,
			Exclude:   []string{paths.GitDir, "**/alire", "**/obj"},
		},
		Git: GitConfig{
			Backend: BackendCLI,
			Binary:  "git",
			Trunk:   paths.DefaultTrunk,
		},
		Baseline: BaselineConfig{
			Source:   BaselineGit,
			Required: true,
		},
		Check: CheckConfig{
			FailOnRegression: true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// Backend names.
const (
	BackendCLI   = "cli"
	BackendGoGit = "go-git"
)

// Baseline sources.
const (
	BaselineGit  = "git"
	BaselineURL  = "url"
	BaselineNone = "none"
)

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads the configuration file at path over the defaults. A missing file
// yields DefaultConfig; unknown keys are rejected so typos surface.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadWorkspace loads the config file from the workspace root.
func LoadWorkspace(root string) (*Config, error) {
	return Load(paths.Workspace{Root: root}.Config())
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Manifest.Name == "" || strings.ContainsAny(c.Manifest.Name, `/\`) {
		return fmt.Errorf("invalid manifest.name %q: must be a bare file name", c.Manifest.Name)
	}
	if c.Manifest.Canonical == "" || filepath.IsAbs(c.Manifest.Canonical) {
		return fmt.Errorf("invalid manifest.canonical %q: must be a workspace-relative path", c.Manifest.Canonical)
	}
	for _, p := range c.Manifest.Include {
		if filepath.IsAbs(p) {
			return fmt.Errorf("invalid manifest.include entry %q: must be workspace-relative", p)
		}
	}
	for _, p := range c.Manifest.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid manifest.exclude pattern %q", p)
		}
	}

	switch c.Git.Backend {
	case BackendCLI, BackendGoGit:
	default:
		return fmt.Errorf("invalid git.backend %q: must be %s or %s", c.Git.Backend, BackendCLI, BackendGoGit)
	}
	if c.Git.Backend == BackendCLI && c.Git.Binary == "" {
		return errors.New("git.binary must be set for the cli backend")
	}
	if c.Git.Trunk == "" {
		return errors.New("git.trunk must not be empty")
	}
	if c.Git.TagMatch != "" && !doublestar.ValidatePattern(c.Git.TagMatch) {
		return fmt.Errorf("invalid git.tag_match pattern %q", c.Git.TagMatch)
	}

	switch c.Baseline.Source {
	case BaselineGit, BaselineURL, BaselineNone:
	default:
		return fmt.Errorf("invalid baseline.source %q: must be git, url, or none", c.Baseline.Source)
	}
	if c.Baseline.URL != "" && !strings.HasPrefix(c.Baseline.URL, "https://") && !strings.HasPrefix(c.Baseline.URL, "http://") {
		return fmt.Errorf("invalid baseline.url %q: must be http(s)", c.Baseline.URL)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// Env holds the environment variables semsync honors. It is read once at
// startup and passed down explicitly.
type Env struct {
	// Ref is GITHUB_REF, e.g. "refs/tags/v1.2.0".
	Ref string
	// Workspace is GITHUB_WORKSPACE, the directory to scan for manifests.
	Workspace string
}

// EnvFrom builds an Env from a lookup function such as os.LookupEnv.
func EnvFrom(lookup func(string) (string, bool)) Env {
	var e Env
	e.Ref, _ = lookup("GITHUB_REF")
	e.Workspace, _ = lookup("GITHUB_WORKSPACE")
	return e
}

// RefTag returns the final path segment of Ref, the tag name for a
// "refs/tags/<name>" ref, or "" when Ref is unset.
func (e Env) RefTag() string {
	if e.Ref == "" {
		return ""
	}
	if i := strings.LastIndex(e.Ref, "/"); i >= 0 {
		return e.Ref[i+1:]
	}
	return e.Ref
}

// Root returns the workspace root: Workspace when set, otherwise fallback.
func (e Env) Root(fallback string) string {
	if e.Workspace != "" {
		return e.Workspace
	}
	return fallback
}
