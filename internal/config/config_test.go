// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input, unknown keys), validation
// ([Config.Validate]), serialization round-trips ([Config.Save],
// [Annotate]), [ConfigDocs] completeness and the [Env] helpers.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".semsync.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "missing file returns defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !reflect.DeepEqual(cfg, DefaultConfig()) {
					t.Errorf("cfg = %+v, want defaults", cfg)
				}
			},
		},
		{
			name:   "empty file returns defaults",
			config: "",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Git.Trunk != "origin/main" || cfg.Manifest.Name != "alire.toml" {
					t.Errorf("cfg = %+v, want defaults", cfg)
				}
			},
		},
		{
			name: "user overrides applied",
			config: `
[git]
backend = "go-git"
trunk = "upstream/develop"
tag_match = "v*"

[baseline]
source = "none"

[check]
fail_on_regression = false
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Git.Backend != BackendGoGit {
					t.Errorf("Backend = %q, want go-git", cfg.Git.Backend)
				}
				if cfg.Git.Trunk != "upstream/develop" {
					t.Errorf("Trunk = %q", cfg.Git.Trunk)
				}
				if cfg.Git.TagMatch != "v*" {
					t.Errorf("TagMatch = %q", cfg.Git.TagMatch)
				}
				if cfg.Baseline.Source != BaselineNone {
					t.Errorf("Source = %q", cfg.Baseline.Source)
				}
				if cfg.Check.FailOnRegression {
					t.Error("FailOnRegression = true, want false")
				}
			},
		},
		{
			name: "partial override preserves other defaults",
			config: `
[manifest]
include = ["alire.toml", "tests/alire.toml"]
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				def := DefaultConfig()
				if len(cfg.Manifest.Include) != 2 {
					t.Errorf("Include = %v", cfg.Manifest.Include)
				}
				if cfg.Manifest.Name != def.Manifest.Name {
					t.Errorf("Name = %q, want default %q", cfg.Manifest.Name, def.Manifest.Name)
				}
				if cfg.Git.Binary != def.Git.Binary {
					t.Errorf("Binary = %q, want default %q", cfg.Git.Binary, def.Git.Binary)
				}
			},
		},
		{
			name:    "malformed TOML returns error",
			config:  "this is not valid toml [[[",
			wantErr: true,
		},
		{
			name:    "unknown key returns error",
			config:  "[git]\ntrunc = \"origin/main\"\n",
			wantErr: true,
		},
		{
			name:    "invalid value returns error",
			config:  "[baseline]\nsource = \"ftp\"\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noFile {
				writeConfig(t, dir, tt.config)
			}

			cfg, err := LoadWorkspace(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(cfg *Config)
		wantErr bool
	}{
		{"default config passes", func(cfg *Config) {}, false},
		{"go-git backend without binary", func(cfg *Config) { cfg.Git.Backend = BackendGoGit; cfg.Git.Binary = "" }, false},
		{"url baseline", func(cfg *Config) { cfg.Baseline.Source = BaselineURL; cfg.Baseline.URL = "https://example.com/alire.toml" }, false},
		{"integer log level", func(cfg *Config) { cfg.Log.Level = "-4" }, false},
		{"manifest name with separator", func(cfg *Config) { cfg.Manifest.Name = "pkg/alire.toml" }, true},
		{"empty manifest name", func(cfg *Config) { cfg.Manifest.Name = "" }, true},
		{"absolute canonical", func(cfg *Config) { cfg.Manifest.Canonical = "/etc/alire.toml" }, true},
		{"absolute include", func(cfg *Config) { cfg.Manifest.Include = []string{"/x/alire.toml"} }, true},
		{"bad exclude pattern", func(cfg *Config) { cfg.Manifest.Exclude = []string{"[unclosed"} }, true},
		{"unknown backend", func(cfg *Config) { cfg.Git.Backend = "svn" }, true},
		{"cli without binary", func(cfg *Config) { cfg.Git.Binary = "" }, true},
		{"empty trunk", func(cfg *Config) { cfg.Git.Trunk = "" }, true},
		{"bad tag_match", func(cfg *Config) { cfg.Git.TagMatch = "v[" }, true},
		{"unknown baseline source", func(cfg *Config) { cfg.Baseline.Source = "ftp" }, true},
		{"non-http baseline url", func(cfg *Config) { cfg.Baseline.URL = "file:///tmp/alire.toml" }, true},
		{"invalid log.level", func(cfg *Config) { cfg.Log.Level = "verbose" }, true},
		{"zero max_size_mb", func(cfg *Config) { cfg.Log.MaxSizeMB = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Save / Annotate
// ///////////////////////////////////////////////

func TestConfig_Save_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".semsync.toml")

	orig := DefaultConfig()
	orig.Git.Trunk = "origin/develop"
	orig.Baseline.Required = false
	orig.Manifest.Exclude = []string{"vendor/**"}

	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, orig) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, orig)
	}
}

func TestAnnotate(t *testing.T) {
	data, err := Annotate(DefaultConfig())
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"[manifest]",
		"[git]",
		"# \"cli\" runs the git binary; \"go-git\" reads the repository in-process.",
		"# backend = \"go-git\"",
		// omitempty fields surface as commented examples
		"# tag_match = \"v*\"",
		"# file = \"semsync.log\"",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("annotated output missing %q:\n%s", want, out)
		}
	}

	// Section order follows the struct.
	if strings.Index(out, "[manifest]") > strings.Index(out, "[log]") {
		t.Error("[manifest] should precede [log]")
	}
}

func TestWriteAnnotatedLoadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".semsync.toml")
	if err := WriteAnnotated(DefaultConfig(), path); err != nil {
		t.Fatalf("WriteAnnotated: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load annotated file: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("annotated defaults did not load back as defaults: %+v", cfg)
	}
}

// ///////////////////////////////////////////////
// ConfigDocs completeness
// ///////////////////////////////////////////////

func TestConfigDocsComplete(t *testing.T) {
	fields := collectTOMLFields(reflect.TypeOf(Config{}), "")
	for _, field := range fields {
		if _, ok := ConfigDocs[field]; !ok {
			t.Errorf("ConfigDocs missing entry for field %q", field)
		}
	}
	known := map[string]bool{}
	for _, f := range fields {
		known[f] = true
	}
	for key := range ConfigDocs {
		if !known[key] {
			t.Errorf("ConfigDocs has entry %q for a field that does not exist", key)
		}
	}
}

// collectTOMLFields recursively walks a struct type and returns the
// dot-separated TOML key path for every tagged field.
func collectTOMLFields(typ reflect.Type, prefix string) []string {
	var fields []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("toml")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx != -1 {
			tag = tag[:idx]
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectTOMLFields(f.Type, path)...)
		} else {
			fields = append(fields, path)
		}
	}
	return fields
}

func TestConfigMarshalSectionOrder(t *testing.T) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := buf.String()
	order := []string{"[manifest]", "[git]", "[baseline]", "[check]", "[log]"}
	prev := -1
	for _, s := range order {
		idx := strings.Index(out, s)
		if idx < 0 || idx < prev {
			t.Errorf("section %s out of order in:\n%s", s, out)
		}
		prev = idx
	}
}

// ///////////////////////////////////////////////
// Env
// ///////////////////////////////////////////////

func TestEnvFrom(t *testing.T) {
	vars := map[string]string{
		"GITHUB_REF":       "refs/tags/v1.4.0",
		"GITHUB_WORKSPACE": "/work/repo",
	}
	env := EnvFrom(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})
	if env.RefTag() != "v1.4.0" {
		t.Errorf("RefTag() = %q, want v1.4.0", env.RefTag())
	}
	if env.Root(".") != "/work/repo" {
		t.Errorf("Root() = %q", env.Root("."))
	}
}

func TestEnvDefaults(t *testing.T) {
	env := EnvFrom(func(string) (string, bool) { return "", false })
	if env.RefTag() != "" {
		t.Errorf("RefTag() = %q, want empty", env.RefTag())
	}
	if env.Root("/cwd") != "/cwd" {
		t.Errorf("Root() = %q, want /cwd", env.Root("/cwd"))
	}
	if (Env{Ref: "v2.0.0"}).RefTag() != "v2.0.0" {
		t.Error("bare ref should be returned unchanged")
	}
}
