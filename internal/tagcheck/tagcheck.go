// Package tagcheck verifies, at release time, that every manifest declares
// exactly the version named by the release tag.
package tagcheck

import (
	"context"
	"fmt"
	"log/slog"

	"tools.zach/dev/semsync/internal/manifest"
	"tools.zach/dev/semsync/internal/vcs"
	"tools.zach/dev/semsync/internal/version"
)

// Result lists what was found for each examined manifest.
type Result struct {
	// Tag is the parsed release tag.
	Tag version.Version
	// Matched lists manifests whose version equals Tag.
	Matched []string
	// Missing lists manifests without a version key.
	Missing []string
	// Mismatched maps manifests to the version they declare instead.
	Mismatched map[string]string
	// Failed maps manifests that could not be read to their error.
	Failed map[string]error
}

// OK reports whether no manifest contradicts the tag.
func (r *Result) OK() bool {
	return len(r.Mismatched) == 0 && len(r.Failed) == 0
}

// TagName returns the release tag to verify: refTag when non-empty (the last
// segment of a CI ref such as refs/tags/v1.2.0), otherwise the latest tag
// reachable from HEAD.
func TagName(ctx context.Context, refTag string, b vcs.Backend) (string, error) {
	if refTag != "" {
		return refTag, nil
	}
	tag, err := b.LatestTag(ctx)
	if err != nil {
		return "", fmt.Errorf("determine release tag: %w", err)
	}
	return tag, nil
}

// Check compares every manifest in paths against tag. Equality follows
// semantic version precedence, so build metadata is ignored. Manifests are
// all examined even after a mismatch so every offender is reported.
func Check(tag version.Version, paths []string) *Result {
	res := &Result{
		Tag:        tag,
		Mismatched: make(map[string]string),
		Failed:     make(map[string]error),
	}
	slog.Info("checking tag", "tag", tag.String(), "manifests", len(paths))

	for _, path := range paths {
		rec, err := manifest.Read(path)
		if err != nil {
			slog.Error("cannot read manifest", "path", path, "error", err)
			res.Failed[path] = err
			continue
		}
		switch {
		case !rec.HasVersion:
			slog.Warn("no version found", "path", path)
			res.Missing = append(res.Missing, path)
		case rec.Declared == nil:
			slog.Error("version is not a semantic version", "path", path, "file", rec.RawVersion)
			res.Mismatched[path] = rec.RawVersion
		case !rec.Declared.Equal(tag):
			slog.Error("version mismatch", "path", path, "tag", tag.String(), "file", rec.Declared.String())
			res.Mismatched[path] = rec.Declared.String()
		default:
			slog.Debug("version matches tag", "path", path)
			res.Matched = append(res.Matched, path)
		}
	}
	return res
}
