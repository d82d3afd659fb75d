// Package baseline finds the version a branch started from, so a proposed
// version can be required to move strictly forward.
//
// The default source reads the canonical manifest as it existed at the merge
// base of HEAD and the trunk reference. A URL source fetches the trunk's
// manifest over HTTP for clones that lack trunk history.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tools.zach/dev/semsync/internal/manifest"
	"tools.zach/dev/semsync/internal/vcs"
	"tools.zach/dev/semsync/internal/version"
)

// ErrUnparseable means the historical manifest is missing, has no version
// key, or its version is not valid semantic version text.
var ErrUnparseable = errors.New("baseline unparseable")

// Resolver produces a baseline version. A nil version with a nil error
// means there is no baseline to enforce.
type Resolver interface {
	Resolve(ctx context.Context) (*version.Version, error)
}

// ///////////////////////////////////////////////
// Git source
// ///////////////////////////////////////////////

// Git resolves the baseline from the merge base with a trunk reference.
type Git struct {
	// Backend answers merge-base and show queries.
	Backend vcs.Backend
	// Trunk is the reference to diverge from, e.g. "origin/main".
	Trunk string
	// Manifest is the repository-relative path of the canonical manifest.
	Manifest string
}

// Resolve returns the canonical manifest's version at the merge base, or nil
// when HEAD shares no history with Trunk.
func (g *Git) Resolve(ctx context.Context) (*version.Version, error) {
	base, err := g.Backend.MergeBase(ctx, g.Trunk)
	if err != nil {
		if errors.Is(err, vcs.ErrNoMergeBase) {
			slog.Info("no merge base with trunk, baseline check disabled", "trunk", g.Trunk)
			return nil, nil
		}
		return nil, fmt.Errorf("merge base with %s: %w", g.Trunk, err)
	}

	data, err := g.Backend.ShowFileAt(ctx, base, g.Manifest)
	if err != nil {
		if errors.Is(err, vcs.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s missing at %s", ErrUnparseable, g.Manifest, base)
		}
		return nil, fmt.Errorf("read %s at %s: %w", g.Manifest, base, err)
	}

	v, err := parse(g.Manifest+"@"+base, data)
	if err != nil {
		return nil, err
	}
	slog.Info("resolved baseline", "version", v.String(), "merge_base", base, "trunk", g.Trunk)
	return v, nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// parse extracts a strict semantic version from a manifest document.
func parse(origin string, data []byte) (*version.Version, error) {
	rec, err := manifest.Parse(origin, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if !rec.HasVersion {
		return nil, fmt.Errorf("%w: %s has no %s key", ErrUnparseable, origin, manifest.Key)
	}
	if rec.Declared == nil {
		return nil, fmt.Errorf("%w: %s version %q", ErrUnparseable, origin, rec.RawVersion)
	}
	return rec.Declared, nil
}

// None is a Resolver that never enforces a baseline.
type None struct{}

// Resolve always returns nil.
func (None) Resolve(context.Context) (*version.Version, error) { return nil, nil }
