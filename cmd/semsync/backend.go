package main

import (
	"tools.zach/dev/semsync/internal/config"
	"tools.zach/dev/semsync/internal/vcs"
	"tools.zach/dev/semsync/internal/vcs/gitcli"
	"tools.zach/dev/semsync/internal/vcs/gogit"
)

// repoBackend is a version-control backend that can also report remote URLs,
// which the URL baseline needs to derive the trunk manifest location.
type repoBackend interface {
	vcs.Backend
	vcs.RemoteLister
}

// backendFactory opens the backend for the repository rooted at root.
type backendFactory func(cfg *config.Config, root string) (repoBackend, error)

// openBackend selects the backend named by git.backend.
func openBackend(cfg *config.Config, root string) (repoBackend, error) {
	switch cfg.Git.Backend {
	case config.BackendGoGit:
		b, err := gogit.Open(root, cfg.Git.TagMatch)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return gitcli.New(root, cfg.Git.Binary, cfg.Git.TagMatch), nil
	}
}
