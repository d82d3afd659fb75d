// Package paths centralizes file and directory names used across the project.
// Every workspace-relative name is defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Workspace file names.
const (
	ManifestName = "alire.toml"
	ConfigFile   = ".semsync.toml"
	GitDir       = ".git"
	LockFile     = "semsync.lock"
	BinaryName   = "semsync"
)

// Git defaults.
const (
	DefaultRemote = "origin"
	DefaultTrunk  = DefaultRemote + "/main"
)

// Files under the git directory whose changes mean the computed version may
// have changed.
const (
	GitHEAD  = "HEAD"
	GitIndex = "index"
	GitRefs  = "refs"
)

// ///////////////////////////////////////////////
// Workspace
// ///////////////////////////////////////////////

// Workspace provides path construction methods rooted at a workspace
// (repository root) directory.
type Workspace struct {
	Root string
}

// Config returns the full path to the workspace config file.
func (w Workspace) Config() string { return filepath.Join(w.Root, ConfigFile) }

// Git returns the full path to the .git directory.
func (w Workspace) Git() string { return filepath.Join(w.Root, GitDir) }

// Lock returns the full path to the run lock, kept inside .git so it is
// never committed.
func (w Workspace) Lock() string { return filepath.Join(w.Git(), LockFile) }

// Manifest returns the full path of the manifest in the workspace root.
func (w Workspace) Manifest() string { return filepath.Join(w.Root, ManifestName) }

// Watched returns the git paths whose modification can change the computed
// version: HEAD, the index and the refs directory.
func (w Workspace) Watched() []string {
	g := w.Git()
	return []string{
		filepath.Join(g, GitHEAD),
		filepath.Join(g, GitIndex),
		filepath.Join(g, GitRefs),
	}
}

// TrunkBranch returns the branch part of a remote-tracking ref such as
// "origin/main". A bare branch name is returned unchanged.
func TrunkBranch(trunk string) string {
	for i := 0; i < len(trunk); i++ {
		if trunk[i] == '/' {
			return trunk[i+1:]
		}
	}
	return trunk
}
