// Package gitcli implements [vcs.Backend] by invoking the git binary.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"tools.zach/dev/semsync/internal/vcs"
)

// Runner executes git with args in dir and returns stdout. It is replaced in
// tests.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Backend runs git commands in a fixed working directory.
type Backend struct {
	// Dir is the directory git runs in.
	Dir string
	// Binary is the git executable name or path. Defaults to "git".
	Binary string
	// TagMatch restricts tags considered by LatestTag (git describe --match).
	TagMatch string

	run Runner
}

// New returns a Backend for dir using the given binary.
func New(dir, binary, tagMatch string) *Backend {
	if binary == "" {
		binary = "git"
	}
	b := &Backend{Dir: dir, Binary: binary, TagMatch: tagMatch}
	b.run = b.exec
	return b
}

// NewWithRunner returns a Backend that sends every command to run.
func NewWithRunner(dir string, run Runner) *Backend {
	return &Backend{Dir: dir, Binary: "git", run: run}
}

// exec is the default [Runner].
func (b *Backend) exec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.Binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", vcs.ErrUnavailable, err)
		}
		return nil, &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// CommandError reports a git invocation that ran but exited unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := "git " + strings.Join(e.Args, " ") + ": " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// output runs git and returns trimmed stdout.
func (b *Backend) output(ctx context.Context, args ...string) (string, error) {
	slog.Debug("git", "args", strings.Join(args, " "))
	out, err := b.run(ctx, b.Dir, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ///////////////////////////////////////////////
// vcs.Backend
// ///////////////////////////////////////////////

// LatestTag runs git describe --tags --abbrev=0. Any unsuccessful exit is
// reported as [vcs.ErrNoTag]; only a missing binary is fatal.
func (b *Backend) LatestTag(ctx context.Context) (string, error) {
	args := []string{"describe", "--tags", "--abbrev=0"}
	if b.TagMatch != "" {
		args = append(args, "--match", b.TagMatch)
	}
	tag, err := b.output(ctx, args...)
	if err != nil {
		if errors.Is(err, vcs.ErrUnavailable) {
			return "", err
		}
		slog.Debug("git describe found no tag", "error", err)
		return "", vcs.ErrNoTag
	}
	if tag == "" {
		return "", vcs.ErrNoTag
	}
	return tag, nil
}

// CommitCount runs git rev-list --count --no-merges.
func (b *Backend) CommitCount(ctx context.Context, since string) (uint64, error) {
	rng := "HEAD"
	if since != "" {
		rng = since + "..HEAD"
	}
	out, err := b.output(ctx, "rev-list", rng, "--count", "--no-merges")
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse commit count %q: %w", out, err)
	}
	return n, nil
}

// IsClean runs git status --porcelain, ignoring untracked files.
func (b *Backend) IsClean(ctx context.Context) (bool, error) {
	out, err := b.output(ctx, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, unavailable(err)
	}
	return out == "", nil
}

// MergeBase runs git merge-base HEAD ref. A non-zero exit means there is no
// common ancestor or ref is unknown.
func (b *Backend) MergeBase(ctx context.Context, ref string) (string, error) {
	out, err := b.output(ctx, "merge-base", "HEAD", ref)
	if err != nil {
		if errors.Is(err, vcs.ErrUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", vcs.ErrNoMergeBase, err)
	}
	if out == "" {
		return "", vcs.ErrNoMergeBase
	}
	return out, nil
}

// ShowFileAt runs git show rev:path.
func (b *Backend) ShowFileAt(ctx context.Context, rev, path string) ([]byte, error) {
	slog.Debug("git", "args", "show "+rev+":"+path)
	out, err := b.run(ctx, b.Dir, "show", rev+":"+path)
	if err != nil {
		if errors.Is(err, vcs.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s:%s: %v", vcs.ErrFileNotFound, rev, path, err)
	}
	return out, nil
}

// RemoteURL runs git remote get-url name.
func (b *Backend) RemoteURL(ctx context.Context, name string) (string, error) {
	return b.output(ctx, "remote", "get-url", name)
}

// unavailable classifies a failure of a command that must succeed inside any
// repository: if it exits non-zero the directory is not usable.
func unavailable(err error) error {
	if errors.Is(err, vcs.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", vcs.ErrUnavailable, err)
}
