package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"tools.zach/dev/semsync/internal/baseline"
	"tools.zach/dev/semsync/internal/config"
	"tools.zach/dev/semsync/internal/discover"
	"tools.zach/dev/semsync/internal/paths"
	"tools.zach/dev/semsync/internal/remote"
	"tools.zach/dev/semsync/internal/syncer"
	"tools.zach/dev/semsync/internal/vcs"
	"tools.zach/dev/semsync/internal/version"
)

// ///////////////////////////////////////////////
// sync
// ///////////////////////////////////////////////

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [manifest...]",
		Short: "Write the derived version into every manifest (default command)",
		Long: `Derives the version, checks it against the baseline and rewrites every
manifest whose version differs. With no arguments manifests are discovered
under the workspace root.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd.Context(), args)
		},
	}
}

// runSync performs one locked synchronization run.
func (c *cli) runSync(ctx context.Context, args []string) error {
	release, err := c.lock()
	if err != nil {
		return err
	}
	defer release()

	candidate, err := c.candidate(ctx)
	if err != nil {
		return err
	}
	base, err := c.baseline(ctx)
	if err != nil {
		return err
	}

	regressed := syncer.Violates(candidate, base)
	if regressed {
		slog.Error("proposed version is not greater than the baseline",
			"candidate", candidate.String(), "baseline", base.String())
	}

	manifests, err := c.manifests(args)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		slog.Warn("no manifests found", "root", c.root, "name", c.cfg.Manifest.Name)
	}

	out := syncer.Synchronize(candidate, base, manifests)
	slog.Info("synchronization finished",
		"version", candidate.String(),
		"updated", len(out.Updated),
		"unchanged", len(out.Unchanged),
		"skipped", len(out.Skipped),
		"failed", len(out.Failed))

	switch {
	case len(out.Failed) > 0:
		return &exitError{code: exitChanged, msg: fmt.Sprintf("%d manifest(s) could not be processed", len(out.Failed))}
	case regressed && c.cfg.Check.FailOnRegression:
		return &exitError{code: exitChanged, msg: fmt.Sprintf("version %s does not exceed baseline %s", candidate, base)}
	case out.AnyMismatch:
		return &exitError{code: exitChanged, msg: fmt.Sprintf("%d manifest(s) rewritten to %s", len(out.Updated), candidate)}
	}
	return nil
}

// ///////////////////////////////////////////////
// Pipeline Steps
// ///////////////////////////////////////////////

// candidate probes the repository and returns the version to write, applying
// --force-version.
func (c *cli) candidate(ctx context.Context) (version.Version, error) {
	b, err := c.repo()
	if err != nil {
		return version.Version{}, err
	}
	state, err := vcs.Probe(ctx, b)
	if err != nil {
		return version.Version{}, err
	}
	calculated := version.Calculate(state)
	slog.Info("calculated version", "version", calculated.String(),
		"tag", state.LatestTag, "commits", state.CommitsSinceTag, "dirty", state.Dirty)

	if c.forceVersion == "" {
		return calculated, nil
	}
	forced, err := version.Parse(c.forceVersion)
	if err != nil {
		return version.Version{}, fmt.Errorf("--force-version: %w", err)
	}
	if forced.String() != calculated.String() {
		slog.Warn("forced version differs from calculated version",
			"forced", forced.String(), "calculated", calculated.String())
	}
	return forced, nil
}

// baseline resolves the monotonicity baseline from the configured source.
// A nil version means no baseline is enforced.
func (c *cli) baseline(ctx context.Context) (*version.Version, error) {
	r, err := c.resolver(ctx)
	if err != nil {
		return nil, err
	}
	v, err := r.Resolve(ctx)
	if err != nil {
		if errors.Is(err, baseline.ErrUnparseable) && !c.cfg.Baseline.Required {
			slog.Warn("baseline unusable, monotonicity check skipped", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// resolver builds the baseline.Resolver for baseline.source.
func (c *cli) resolver(ctx context.Context) (baseline.Resolver, error) {
	canonical := filepath.ToSlash(c.cfg.Manifest.Canonical)

	switch c.cfg.Baseline.Source {
	case config.BaselineNone:
		return baseline.None{}, nil

	case config.BaselineURL:
		loc := c.cfg.Baseline.URL
		if loc == "" {
			b, err := c.repo()
			if err != nil {
				return nil, err
			}
			repo, err := remote.Resolve(ctx, b, paths.DefaultRemote)
			if err != nil {
				return nil, fmt.Errorf("derive baseline url: %w", err)
			}
			loc = repo.RawURL(paths.TrunkBranch(c.cfg.Git.Trunk), canonical)
		}
		return &baseline.URL{Location: loc}, nil

	default:
		b, err := c.repo()
		if err != nil {
			return nil, err
		}
		return &baseline.Git{Backend: b, Trunk: c.cfg.Git.Trunk, Manifest: canonical}, nil
	}
}

// manifests returns the files to process: explicit arguments, then
// manifest.include, then discovery below the workspace root.
func (c *cli) manifests(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(c.cfg.Manifest.Include) > 0 {
		out := make([]string, len(c.cfg.Manifest.Include))
		for i, p := range c.cfg.Manifest.Include {
			out[i] = filepath.Join(c.root, filepath.FromSlash(p))
		}
		return out, nil
	}
	return discover.Find(c.root, discover.Options{
		Name:    c.cfg.Manifest.Name,
		Exclude: c.cfg.Manifest.Exclude,
	})
}
