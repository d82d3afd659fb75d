// Package remote turns a repository's origin URL into GitHub raw-content URLs.
//
// Owner and repo come from the backend's remote configuration, so no
// process-wide state is consulted.
package remote

import (
	"context"
	"fmt"
	"regexp"

	"tools.zach/dev/semsync/internal/vcs"
)

// githubRemoteRe extracts owner and repo from GitHub remote URLs.
// Matches both HTTPS (github.com/) and SSH (github.com:) formats.
var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

// ParseURL extracts the GitHub owner and repository from a remote URL.
func ParseURL(url string) (Repo, error) {
	m := githubRemoteRe.FindStringSubmatch(url)
	if len(m) != 3 {
		return Repo{}, fmt.Errorf("not a GitHub remote: %q", url)
	}
	return Repo{Owner: m[1], Name: m[2]}, nil
}

// Resolve looks up the named remote through b and parses it.
func Resolve(ctx context.Context, b vcs.RemoteLister, name string) (Repo, error) {
	url, err := b.RemoteURL(ctx, name)
	if err != nil {
		return Repo{}, fmt.Errorf("remote url: %w", err)
	}
	return ParseURL(url)
}

// RawURL returns the raw.githubusercontent.com URL for path on branch.
func (r Repo) RawURL(branch, path string) string {
	return "https://raw.githubusercontent.com/" + r.Owner + "/" + r.Name + "/" + branch + "/" + path
}
