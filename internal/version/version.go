// Package version holds the semantic version value type used across semsync
// and the calculator that derives a candidate version from repository state.
//
// All ordering goes through [Compare], which applies semantic-versioning
// precedence: the numeric core first, then prerelease identifiers. Build
// metadata never participates in ordering.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver"
	modsemver "golang.org/x/mod/semver"
)

// ErrUnparseable is returned when a tag or manifest value is not valid
// semantic version text.
var ErrUnparseable = errors.New("not a semantic version")

// DevLabel is the prerelease label attached to untagged builds.
const DevLabel = "dev"

// Version is an immutable semantic version. Methods that change a field
// return a new value.
type Version struct {
	v semver.Version
}

// Default is the base version used when no usable tag is reachable.
var Default = MustParse("0.0.1")

// Parse parses strict semantic version text. A single leading "v" is
// accepted and dropped.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	v, err := semver.Parse(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrUnparseable, s, err)
	}
	return Version{v: v}, nil
}

// MustParse is like [Parse] but panics on error. For constants only.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseTag parses a tag name. Ref prefixes such as "refs/tags/" are removed
// and abbreviated cores ("v1.2", "v1") are completed to three components.
// Build metadata on a tag is discarded.
func ParseTag(tag string) (Version, error) {
	name := tag
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if !strings.HasPrefix(name, "v") {
		name = "v" + name
	}
	if !modsemver.IsValid(name) {
		return Version{}, fmt.Errorf("%w: tag %q", ErrUnparseable, tag)
	}
	return Parse(modsemver.Canonical(name))
}

// New builds a release version from its numeric core.
func New(major, minor, patch uint64) Version {
	return Version{v: semver.Version{Major: major, Minor: minor, Patch: patch}}
}

// Major returns the major component.
func (v Version) Major() uint64 { return v.v.Major }

// Minor returns the minor component.
func (v Version) Minor() uint64 { return v.v.Minor }

// Patch returns the patch component.
func (v Version) Patch() uint64 { return v.v.Patch }

// Prerelease returns the dot-joined prerelease identifiers, or "".
func (v Version) Prerelease() string {
	parts := make([]string, len(v.v.Pre))
	for i, p := range v.v.Pre {
		parts[i] = p.String()
	}
	return strings.Join(parts, ".")
}

// Build returns the dot-joined build metadata, or "".
func (v Version) Build() string {
	return strings.Join(v.v.Build, ".")
}

// Release returns v with prerelease and build metadata removed.
func (v Version) Release() Version {
	return New(v.v.Major, v.v.Minor, v.v.Patch)
}

// WithPrerelease returns a copy of v carrying the given prerelease
// identifiers. An empty string clears the prerelease.
func (v Version) WithPrerelease(pre string) (Version, error) {
	out := Version{v: semver.Version{
		Major: v.v.Major,
		Minor: v.v.Minor,
		Patch: v.v.Patch,
		Build: append([]string(nil), v.v.Build...),
	}}
	if pre == "" {
		return out, nil
	}
	for _, id := range strings.Split(pre, ".") {
		p, err := semver.NewPRVersion(id)
		if err != nil {
			return Version{}, fmt.Errorf("%w: prerelease %q: %v", ErrUnparseable, pre, err)
		}
		out.v.Pre = append(out.v.Pre, p)
	}
	return out, nil
}

// WithBuild returns a copy of v carrying the given build metadata. An empty
// string clears it.
func (v Version) WithBuild(build string) (Version, error) {
	out := Version{v: semver.Version{
		Major: v.v.Major,
		Minor: v.v.Minor,
		Patch: v.v.Patch,
		Pre:   append([]semver.PRVersion(nil), v.v.Pre...),
	}}
	if build == "" {
		return out, nil
	}
	for _, id := range strings.Split(build, ".") {
		b, err := semver.NewBuildVersion(id)
		if err != nil {
			return Version{}, fmt.Errorf("%w: build %q: %v", ErrUnparseable, build, err)
		}
		out.v.Build = append(out.v.Build, b)
	}
	return out, nil
}

// String renders v as semantic version text without a "v" prefix.
func (v Version) String() string { return v.v.String() }

// Compare returns -1, 0 or +1 under semantic-versioning precedence.
func Compare(a, b Version) int { return a.v.Compare(b.v) }

// Equal reports whether a and b have equal precedence.
func (v Version) Equal(o Version) bool { return Compare(v, o) == 0 }

// LessThan reports whether v sorts strictly before o.
func (v Version) LessThan(o Version) bool { return Compare(v, o) < 0 }

// GreaterThan reports whether v sorts strictly after o.
func (v Version) GreaterThan(o Version) bool { return Compare(v, o) > 0 }

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v.v.Major == 0 && v.v.Minor == 0 && v.v.Patch == 0 && len(v.v.Pre) == 0 && len(v.v.Build) == 0
}
