// Package gogit implements [vcs.Backend] in-process on top of go-git, for
// environments where no git binary is installed.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tools.zach/dev/semsync/internal/vcs"
)

// Backend reads an on-disk repository with go-git.
type Backend struct {
	repo *git.Repository
	// tagMatch is a glob restricting which tag names LatestTag considers.
	tagMatch string
}

// Open opens the repository containing dir, searching parent directories
// for the .git directory.
func Open(dir, tagMatch string) (*Backend, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", vcs.ErrUnavailable, dir, err)
	}
	return New(repo, tagMatch), nil
}

// New wraps an already opened repository.
func New(repo *git.Repository, tagMatch string) *Backend {
	return &Backend{repo: repo, tagMatch: tagMatch}
}

// head resolves HEAD to a commit.
func (b *Backend) head() (*object.Commit, error) {
	ref, err := b.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve HEAD: %v", vcs.ErrUnavailable, err)
	}
	c, err := b.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: read HEAD commit: %v", vcs.ErrUnavailable, err)
	}
	return c, nil
}

// commitFor resolves a revision (tag, branch, hash) to a commit.
func (b *Backend) commitFor(rev string) (*object.Commit, error) {
	h, err := b.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, err
	}
	if tag, err := b.repo.TagObject(*h); err == nil {
		return tag.Commit()
	}
	return b.repo.CommitObject(*h)
}

// tagsByCommit maps peeled commit hashes to tag names. When several tags
// point at one commit the lexically greatest name wins.
func (b *Backend) tagsByCommit() (map[plumbing.Hash]string, error) {
	iter, err := b.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make(map[plumbing.Hash]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if b.tagMatch != "" {
			if ok, _ := doublestar.Match(b.tagMatch, name); !ok {
				return nil
			}
		}
		hash := ref.Hash()
		if tag, err := b.repo.TagObject(hash); err == nil {
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			hash = c.Hash
		}
		if prev, ok := out[hash]; !ok || name > prev {
			out[hash] = name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tags: %w", err)
	}
	return out, nil
}

// ///////////////////////////////////////////////
// vcs.Backend
// ///////////////////////////////////////////////

// LatestTag returns the tag closest to HEAD, following git describe: the
// tagged ancestor with the fewest commits reachable from HEAD but not from
// it. Ties go to the more recently committed tag, then to the greater name.
func (b *Backend) LatestTag(ctx context.Context) (string, error) {
	tags, err := b.tagsByCommit()
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", vcs.ErrNoTag
	}
	head, err := b.head()
	if err != nil {
		return "", err
	}
	reachable, err := b.ancestors(ctx, head)
	if err != nil {
		return "", err
	}

	var (
		best     string
		bestDist = -1
		bestWhen time.Time
	)
	for hash, name := range tags {
		if _, ok := reachable[hash]; !ok {
			continue
		}
		c, err := b.repo.CommitObject(hash)
		if err != nil {
			return "", fmt.Errorf("read tagged commit %s: %w", name, err)
		}
		below, err := b.ancestors(ctx, c)
		if err != nil {
			return "", err
		}
		dist := len(reachable) - len(below)
		when := c.Committer.When
		switch {
		case bestDist < 0, dist < bestDist:
		case dist == bestDist && when.After(bestWhen):
		case dist == bestDist && when.Equal(bestWhen) && name > best:
		default:
			continue
		}
		best, bestDist, bestWhen = name, dist, when
	}
	if best == "" {
		return "", vcs.ErrNoTag
	}
	return best, nil
}

// ancestors returns every commit reachable from c, c included.
func (b *Backend) ancestors(ctx context.Context, c *object.Commit) (map[plumbing.Hash]struct{}, error) {
	seen := make(map[plumbing.Hash]struct{})
	iter, err := b.repo.Log(&git.LogOptions{From: c.Hash})
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = struct{}{}
		return nil
	})
	return seen, err
}

// CommitCount counts non-merge commits reachable from HEAD and not from since.
func (b *Backend) CommitCount(ctx context.Context, since string) (uint64, error) {
	head, err := b.head()
	if err != nil {
		return 0, err
	}
	exclude := map[plumbing.Hash]struct{}{}
	if since != "" {
		base, err := b.commitFor(since)
		if err != nil {
			return 0, fmt.Errorf("%w: resolve %s: %v", vcs.ErrUnavailable, since, err)
		}
		if exclude, err = b.ancestors(ctx, base); err != nil {
			return 0, err
		}
	}

	iter, err := b.repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return 0, fmt.Errorf("log: %w", err)
	}
	defer iter.Close()

	var n uint64
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, skip := exclude[c.Hash]; skip {
			return nil
		}
		if c.NumParents() < 2 {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IsClean reports whether the worktree has no changes to tracked files.
// Untracked files are ignored.
func (b *Backend) IsClean(ctx context.Context) (bool, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("%w: worktree: %v", vcs.ErrUnavailable, err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	for _, fs := range status {
		if fs.Worktree == git.Untracked && fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			return false, nil
		}
	}
	return true, nil
}

// MergeBase returns the best common ancestor of HEAD and ref.
func (b *Backend) MergeBase(ctx context.Context, ref string) (string, error) {
	head, err := b.head()
	if err != nil {
		return "", err
	}
	other, err := b.commitFor(ref)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", vcs.ErrNoMergeBase, ref, err)
	}
	bases, err := head.MergeBase(other)
	if err != nil {
		return "", fmt.Errorf("merge base: %w", err)
	}
	if len(bases) == 0 {
		return "", vcs.ErrNoMergeBase
	}
	return bases[0].Hash.String(), nil
}

// ShowFileAt returns path's content in the tree of rev.
func (b *Backend) ShowFileAt(ctx context.Context, rev, path string) ([]byte, error) {
	c, err := b.commitFor(rev)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", vcs.ErrFileNotFound, rev, err)
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s:%s", vcs.ErrFileNotFound, rev, path)
		}
		return nil, fmt.Errorf("read %s:%s: %w", rev, path, err)
	}
	s, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", rev, path, err)
	}
	return []byte(s), nil
}

// RemoteURL returns the first configured URL of the named remote.
func (b *Backend) RemoteURL(ctx context.Context, name string) (string, error) {
	r, err := b.repo.Remote(name)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", name, err)
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", name)
	}
	return urls[0], nil
}
