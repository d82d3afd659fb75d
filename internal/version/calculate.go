package version

import (
	"log/slog"
	"strconv"

	"tools.zach/dev/semsync/internal/vcs"
)

// ///////////////////////////////////////////////
// Calculator
// ///////////////////////////////////////////////

// BuildNumber returns the number of changes past the base tag: commits since
// the tag, plus one when the working tree is dirty. A dirty tree therefore
// always sorts after the clean commit it was made from.
func BuildNumber(state vcs.GitState) uint64 {
	n := state.CommitsSinceTag
	if state.Dirty {
		n++
	}
	return n
}

// Base returns the version encoded by the state's tag, or [Default] when
// there is no tag or it cannot be parsed. The second result is false when
// the default was used.
func Base(state vcs.GitState) (Version, bool) {
	if !state.HasTag() {
		return Default, false
	}
	v, err := ParseTag(state.LatestTag)
	if err != nil {
		slog.Warn("tag is not a semantic version, using default base", "tag", state.LatestTag, "default", Default.String())
		return Default, false
	}
	return v, true
}

// Calculate derives the candidate version for state. On a clean tree sitting
// exactly on a tag the tag's version is returned unchanged; otherwise the base
// carries the prerelease "dev.<build>", e.g. 1.0.0-dev.3.
func Calculate(state vcs.GitState) Version {
	base, _ := Base(state)
	build := BuildNumber(state)
	if build == 0 {
		return base
	}
	v, err := base.WithPrerelease(DevLabel + "." + strconv.FormatUint(build, 10))
	if err != nil {
		// "dev.<digits>" is always a valid prerelease.
		panic(err)
	}
	return v
}
