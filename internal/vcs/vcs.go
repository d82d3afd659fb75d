// Package vcs defines the narrow version-control interface semsync needs and
// the probe that turns it into a [GitState].
//
// Concrete backends live in sub-packages: gitcli shells out to the git
// binary, gogit reads the repository in-process, and vcstest provides an
// in-memory fake for tests.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrUnavailable means the backend cannot be used at all (binary
	// missing, not a repository). It is fatal for a run.
	ErrUnavailable = errors.New("version control unavailable")

	// ErrNoTag means no tag is reachable from the current position. This is
	// an expected outcome, not a failure.
	ErrNoTag = errors.New("no tag found")

	// ErrNoMergeBase means the current position shares no history with the
	// requested reference, or the reference does not exist.
	ErrNoMergeBase = errors.New("no merge base")

	// ErrFileNotFound means a path does not exist at the requested revision.
	ErrFileNotFound = errors.New("file not found at revision")
)

// ///////////////////////////////////////////////
// Backend
// ///////////////////////////////////////////////

// Backend is the version-control surface used by semsync.
type Backend interface {
	// LatestTag returns the most recent tag reachable from HEAD, or ErrNoTag.
	LatestTag(ctx context.Context) (string, error)
	// CommitCount counts non-merge commits reachable from HEAD but not from
	// since. An empty since counts from the beginning of history.
	CommitCount(ctx context.Context, since string) (uint64, error)
	// IsClean reports whether no tracked file differs from HEAD.
	IsClean(ctx context.Context) (bool, error)
	// MergeBase returns the common ancestor of HEAD and ref, or ErrNoMergeBase.
	MergeBase(ctx context.Context, ref string) (string, error)
	// ShowFileAt returns the content of path as of rev, or ErrFileNotFound.
	ShowFileAt(ctx context.Context, rev, path string) ([]byte, error)
}

// RemoteLister is implemented by backends that can report remote URLs.
type RemoteLister interface {
	RemoteURL(ctx context.Context, name string) (string, error)
}

// ///////////////////////////////////////////////
// GitState
// ///////////////////////////////////////////////

// GitState is a snapshot of repository state taken once per run.
type GitState struct {
	// LatestTag is the nearest reachable tag, or "" when none exists.
	LatestTag string
	// CommitsSinceTag counts non-merge commits after LatestTag (or since the
	// root commit when there is no tag).
	CommitsSinceTag uint64
	// Dirty is true when a tracked file has uncommitted changes.
	Dirty bool
}

// HasTag reports whether a tag was found.
func (s GitState) HasTag() bool { return s.LatestTag != "" }

// ///////////////////////////////////////////////
// Probe
// ///////////////////////////////////////////////

// Probe queries b for the latest tag, the commit count since it and the
// working-tree cleanliness. A missing tag is not an error. Any error wrapping
// [ErrUnavailable] must be treated as fatal by the caller.
func Probe(ctx context.Context, b Backend) (GitState, error) {
	var state GitState

	tag, err := b.LatestTag(ctx)
	switch {
	case err == nil:
		state.LatestTag = tag
	case errors.Is(err, ErrNoTag):
		slog.Debug("no tag reachable, counting all history")
	default:
		return GitState{}, fmt.Errorf("latest tag: %w", err)
	}

	count, err := b.CommitCount(ctx, state.LatestTag)
	if err != nil {
		return GitState{}, fmt.Errorf("commit count: %w", err)
	}
	state.CommitsSinceTag = count

	clean, err := b.IsClean(ctx)
	if err != nil {
		return GitState{}, fmt.Errorf("working tree status: %w", err)
	}
	state.Dirty = !clean

	slog.Info("probed repository", "tag", state.LatestTag, "commits", state.CommitsSinceTag, "dirty", state.Dirty)
	return state, nil
}
