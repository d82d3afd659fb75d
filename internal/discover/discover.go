// Package discover finds manifest files below a root directory.
package discover

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Options controls which files are returned.
type Options struct {
	// Name is the manifest file name, e.g. "alire.toml".
	Name string
	// Exclude lists doublestar patterns, relative to the root, of paths to
	// skip. A matching directory is pruned entirely.
	Exclude []string
}

// Find walks root and returns every file named opts.Name that is not
// excluded. Paths are joined to root and sorted lexically so runs are
// reproducible across platforms.
func Find(root string, opts Options) ([]string, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("manifest name is empty")
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	found, err := walk(os.DirFS(root), opts)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	for i, rel := range found {
		found[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	sort.Strings(found)
	return found, nil
}

// walk returns the slash-separated paths in fsys of every manifest named
// opts.Name, never descending into an excluded directory.
func walk(fsys fs.FS, opts Options) ([]string, error) {
	var found []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if excluded(path, opts.Exclude) {
			slog.Debug("path excluded", "path", path)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == opts.Name {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

// excluded reports whether path matches one of patterns. Parents are not
// checked: walk prunes excluded directories before reaching their children.
func excluded(path string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}
