package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/semsync/internal/atomicfile"
)

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// [Annotate] uses FieldDoc values to comment the file written by "semsync init".
type FieldDoc struct {
	// Comment is shown as a header comment above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "git.backend") to
// their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Manifest ─────────────────────────────────────────────────
	"manifest.name": {
		Comment: "File name searched for recursively under the workspace root.",
	},
	"manifest.canonical": {
		Comment: "Manifest whose version at the trunk merge-base is the monotonicity baseline.",
	},
	"manifest.include": {
		Comment:      "Explicit manifest list. When set, no discovery happens.",
		Alternatives: []string{`include = ["alire.toml", "tests/alire.toml"]`},
	},
	"manifest.exclude": {
		Comment: "Glob patterns (doublestar syntax) for paths never scanned.",
	},

	// ── Git ──────────────────────────────────────────────────────
	"git.backend": {
		Comment:      "\"cli\" runs the git binary; \"go-git\" reads the repository in-process.",
		Alternatives: []string{`backend = "go-git"`},
	},
	"git.binary": {},
	"git.trunk": {
		Comment: "Ref whose merge-base with HEAD provides the baseline.",
	},
	"git.tag_match": {
		Comment:      "Only tags matching this glob are treated as releases.",
		Alternatives: []string{`tag_match = "v*"`},
	},

	// ── Baseline ─────────────────────────────────────────────────
	"baseline.source": {
		Comment:      "Where the baseline version comes from: \"git\", \"url\" or \"none\".",
		Alternatives: []string{`source = "url"`, `source = "none"`},
	},
	"baseline.url": {
		Comment:      "Fetched when source = \"url\". Empty derives a raw GitHub URL from origin and the trunk branch.",
		Alternatives: []string{`url = "https://raw.githubusercontent.com/acme/widgets/main/alire.toml"`},
	},
	"baseline.required": {
		Comment: "Abort when the baseline manifest is missing or unparseable.",
	},

	// ── Check ────────────────────────────────────────────────────
	"check.fail_on_regression": {
		Comment: "Exit 1 when the derived version does not exceed the baseline.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment:      "trace, debug, info, warn, error or fail",
		Alternatives: []string{`level = "debug"`},
	},
	"log.file": {
		Comment:      "Also write the log to this file, rotated at max_size_mb.",
		Alternatives: []string{`file = "semsync.log"`},
	},
	"log.max_size_mb": {},
}

// ///////////////////////////////////////////////
// Annotated Output
// ///////////////////////////////////////////////

// Annotate encodes cfg as TOML with [ConfigDocs] comments injected above each
// documented key. Documented keys omitted by the encoder are added as
// commented-out examples.
func Annotate(cfg *Config) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# semsync configuration",
		"# ///////////////////////////////////////////////",
	}
	var section string
	emitted := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			out = injectOmitted(out, section, emitted)
			section = strings.Trim(trimmed, "[] ")
			out = append(out, "", trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		full := key
		if section != "" {
			full = section + "." + key
		}
		emitted[full] = true

		doc := ConfigDocs[full]
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}
	out = injectOmitted(out, section, emitted)

	return []byte(strings.Join(out, "\n") + "\n"), nil
}

// WriteAnnotated writes the annotated form of cfg to path atomically.
func WriteAnnotated(cfg *Config, path string) error {
	data, err := Annotate(cfg)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o644)
}

// appendComment adds comment as "# " lines.
func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for documented keys directly
// under section that the encoder left out, typically omitempty fields at
// their zero value. Keys are sorted for deterministic output.
func injectOmitted(out []string, section string, emitted map[string]bool) []string {
	if section == "" {
		return out
	}
	prefix := section + "."

	var omitted []string
	for path := range ConfigDocs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := ConfigDocs[path]
		out = appendComment(out, doc.Comment)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
		emitted[path] = true
	}
	return out
}
