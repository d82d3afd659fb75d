// Package manifest reads package manifests (TOML documents such as
// alire.toml) and rewrites their top-level version value in place.
//
// Only the bytes of the version value change on rewrite. Every other key,
// comment, blank line and ordering stays byte-for-byte identical.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/semsync/internal/atomicfile"
	"tools.zach/dev/semsync/internal/version"
)

// Key is the top-level manifest key holding the version.
const Key = "version"

var (
	// ErrNotASCII is returned for documents containing bytes outside 7-bit
	// ASCII.
	ErrNotASCII = errors.New("manifest is not ASCII")

	// ErrNoVersionLine is returned when the decoder sees a version key but
	// no rewritable top-level assignment line exists for it.
	ErrNoVersionLine = errors.New("no top-level version assignment")
)

// versionLineRe matches a top-level version assignment and captures the
// prefix up to the value, the value token and the remainder of the line.
var versionLineRe = regexp.MustCompile(`^(\s*(?:version|"version"|'version')\s*=\s*)("(?:[^"\\]|\\.)*"|'[^']*'|[^\s#]+)(.*)$`)

// tableHeaderRe matches a table or array-of-tables header line.
var tableHeaderRe = regexp.MustCompile(`^\s*\[`)

// ///////////////////////////////////////////////
// Record
// ///////////////////////////////////////////////

// Record is one manifest file loaded into memory.
type Record struct {
	// Path is the file the record was read from.
	Path string
	// HasVersion is true when the document has a top-level version key.
	HasVersion bool
	// RawVersion is the version value as written in the document.
	RawVersion string
	// Declared is the parsed version; nil when absent or unparseable.
	Declared *version.Version

	data []byte
}

// Parse decodes a manifest document held in memory.
func Parse(path string, data []byte) (*Record, error) {
	if i := nonASCII(data); i >= 0 {
		return nil, fmt.Errorf("%w: %s: byte 0x%02x at offset %d", ErrNotASCII, path, data[i], i)
	}
	var doc map[string]any
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	rec := &Record{Path: path, data: data}
	if !md.IsDefined(Key) {
		return rec, nil
	}
	switch raw := doc[Key].(type) {
	case string:
		rec.RawVersion = raw
	case map[string]any, []any, []map[string]any:
		// A table or array (e.g. version.major = 1) is not a version
		// assignment.
		slog.Debug("manifest version key is not a scalar, ignoring", "path", path, "type", md.Type(Key))
		return rec, nil
	default:
		rec.RawVersion = fmt.Sprint(raw)
	}
	rec.HasVersion = true
	if v, err := version.Parse(rec.RawVersion); err == nil {
		rec.Declared = &v
	} else {
		slog.Debug("manifest version unparseable", "path", path, "value", rec.RawVersion, "error", err)
	}
	return rec, nil
}

// Read loads and parses the manifest at path.
func Read(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Bytes returns the current in-memory document.
func (r *Record) Bytes() []byte { return r.data }

// SetVersion replaces the version value in the in-memory document with v,
// preserving the original quote style. It fails if the result would not
// decode back to exactly v.
func (r *Record) SetVersion(v version.Version) error {
	text := v.String()
	if nonASCII([]byte(text)) >= 0 {
		return fmt.Errorf("%w: version %q", ErrNotASCII, text)
	}

	lines := strings.SplitAfter(string(r.data), "\n")
	idx := findVersionLine(lines)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoVersionLine, r.Path)
	}

	body, eol := splitEOL(lines[idx])
	m := versionLineRe.FindStringSubmatch(body)
	quote := `"`
	if strings.HasPrefix(m[2], "'") {
		quote = "'"
	}
	lines[idx] = m[1] + quote + text + quote + m[3] + eol
	updated := []byte(strings.Join(lines, ""))

	check, err := Parse(r.Path, updated)
	if err != nil {
		return fmt.Errorf("rewritten manifest does not parse: %w", err)
	}
	if check.RawVersion != text {
		return fmt.Errorf("rewritten manifest %s has version %q, want %q", r.Path, check.RawVersion, text)
	}

	r.data = updated
	r.RawVersion = text
	r.Declared = &v
	return nil
}

// Save writes the in-memory document back to [Record.Path] atomically.
func (r *Record) Save() error {
	return atomicfile.Replace(r.Path, r.data)
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// findVersionLine returns the index of the top-level version assignment in
// lines, skipping multi-line string bodies and stopping at the first table
// header. It returns -1 when none exists.
func findVersionLine(lines []string) int {
	var inMulti string
	for i, raw := range lines {
		line, _ := splitEOL(raw)
		if inMulti == "" {
			if tableHeaderRe.MatchString(line) {
				return -1
			}
			if versionLineRe.MatchString(line) {
				return i
			}
		}
		inMulti = openMultiline(line, inMulti)
	}
	return -1
}

// openMultiline scans one line and returns the multi-line string delimiter
// still open at its end, or "". open is the delimiter open at the start of
// the line. Comments and single-line strings are skipped, so delimiters
// inside them do not count.
func openMultiline(line, open string) string {
	i := 0
	for i < len(line) {
		if open != "" {
			j := closingDelim(line[i:], open)
			if j < 0 {
				return open
			}
			i += j + len(open)
			// Up to two quotes directly after the delimiter belong to the body.
			for k := 0; k < 2 && i < len(line) && line[i] == open[0]; k++ {
				i++
			}
			open = ""
			continue
		}
		switch c := line[i]; {
		case c == '#':
			return ""
		case strings.HasPrefix(line[i:], `"""`), strings.HasPrefix(line[i:], `'''`):
			open = line[i : i+3]
			i += 3
		case c == '"':
			i = skipBasic(line, i+1)
		case c == '\'':
			j := strings.IndexByte(line[i+1:], '\'')
			if j < 0 {
				return ""
			}
			i += j + 2
		default:
			i++
		}
	}
	return open
}

// closingDelim returns the offset of delim in s, or -1. Backslash escapes
// are honored for basic strings.
func closingDelim(s, delim string) int {
	if delim == `'''` {
		return strings.Index(s, delim)
	}
	for k := 0; k < len(s); k++ {
		switch {
		case s[k] == '\\':
			k++
		case strings.HasPrefix(s[k:], delim):
			return k
		}
	}
	return -1
}

// skipBasic returns the offset just past the closing quote of a single-line
// basic string whose body starts at i.
func skipBasic(line string, i int) int {
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return len(line)
}

// splitEOL separates a line from its trailing "\n" or "\r\n".
func splitEOL(line string) (body, eol string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}

// nonASCII returns the offset of the first byte above 0x7f, or -1.
func nonASCII(data []byte) int {
	for i, b := range data {
		if b > 0x7f {
			return i
		}
	}
	return -1
}
