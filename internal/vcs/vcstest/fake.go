// Package vcstest provides an in-memory [vcs.Backend] for tests.
package vcstest

import (
	"context"
	"fmt"

	"tools.zach/dev/semsync/internal/vcs"
)

// Fake is a scripted [vcs.Backend]. Zero values describe a clean repository
// with no tags, no commits and no trunk.
type Fake struct {
	// Tag is returned by LatestTag; "" yields vcs.ErrNoTag.
	Tag string
	// Commits maps a since argument ("" for all history) to a count.
	Commits map[string]uint64
	// Dirty makes IsClean report false.
	Dirty bool
	// Bases maps a trunk ref to its merge-base revision.
	Bases map[string]string
	// Files maps "rev:path" to content.
	Files map[string]string
	// Remotes maps remote names to URLs.
	Remotes map[string]string
	// Err, when set, is returned from every call.
	Err error

	// Calls records the method names invoked, in order.
	Calls []string
}

var _ vcs.Backend = (*Fake)(nil)

func (f *Fake) record(name string) error {
	f.Calls = append(f.Calls, name)
	return f.Err
}

// LatestTag implements vcs.Backend.
func (f *Fake) LatestTag(context.Context) (string, error) {
	if err := f.record("LatestTag"); err != nil {
		return "", err
	}
	if f.Tag == "" {
		return "", vcs.ErrNoTag
	}
	return f.Tag, nil
}

// CommitCount implements vcs.Backend.
func (f *Fake) CommitCount(_ context.Context, since string) (uint64, error) {
	if err := f.record("CommitCount"); err != nil {
		return 0, err
	}
	return f.Commits[since], nil
}

// IsClean implements vcs.Backend.
func (f *Fake) IsClean(context.Context) (bool, error) {
	if err := f.record("IsClean"); err != nil {
		return false, err
	}
	return !f.Dirty, nil
}

// MergeBase implements vcs.Backend.
func (f *Fake) MergeBase(_ context.Context, ref string) (string, error) {
	if err := f.record("MergeBase"); err != nil {
		return "", err
	}
	base, ok := f.Bases[ref]
	if !ok {
		return "", vcs.ErrNoMergeBase
	}
	return base, nil
}

// ShowFileAt implements vcs.Backend.
func (f *Fake) ShowFileAt(_ context.Context, rev, path string) ([]byte, error) {
	if err := f.record("ShowFileAt"); err != nil {
		return nil, err
	}
	content, ok := f.Files[rev+":"+path]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", vcs.ErrFileNotFound, rev, path)
	}
	return []byte(content), nil
}

// RemoteURL implements vcs.RemoteLister.
func (f *Fake) RemoteURL(_ context.Context, name string) (string, error) {
	if err := f.record("RemoteURL"); err != nil {
		return "", err
	}
	u, ok := f.Remotes[name]
	if !ok {
		return "", fmt.Errorf("no remote %q", name)
	}
	return u, nil
}
