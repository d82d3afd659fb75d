package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tools.zach/dev/semsync/internal/config"
	"tools.zach/dev/semsync/internal/paths"
	"tools.zach/dev/semsync/internal/tagcheck"
	"tools.zach/dev/semsync/internal/version"
	"tools.zach/dev/semsync/internal/watch"
)

// ///////////////////////////////////////////////
// print
// ///////////////////////////////////////////////

func (c *cli) printCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the derived version without touching any file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := c.candidate(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v.String())
			return err
		},
	}
}

// ///////////////////////////////////////////////
// verify-tag
// ///////////////////////////////////////////////

func (c *cli) verifyTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-tag [manifest...]",
		Short: "Check that every manifest declares the release tag's version",
		Long: `Takes the tag from the last segment of $GITHUB_REF, or the latest reachable
tag when unset, and fails when any manifest declares a different version.
Manifests without a version are reported and ignored.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVerifyTag(cmd.Context(), args)
		},
	}
}

func (c *cli) runVerifyTag(ctx context.Context, args []string) error {
	b, err := c.repo()
	if err != nil {
		return err
	}
	name, err := tagcheck.TagName(ctx, c.d.env.RefTag(), b)
	if err != nil {
		return err
	}
	tag, err := version.ParseTag(name)
	if err != nil {
		return fmt.Errorf("release tag %q: %w", name, err)
	}

	manifests, err := c.manifests(args)
	if err != nil {
		return err
	}
	res := tagcheck.Check(tag, manifests)
	if !res.OK() {
		return &exitError{
			code: exitChanged,
			msg:  fmt.Sprintf("%d manifest(s) disagree with tag %s", len(res.Mismatched)+len(res.Failed), name),
		}
	}
	slog.Info("tag matches manifests", "tag", name, "matched", len(res.Matched), "without_version", len(res.Missing))
	return nil
}

// ///////////////////////////////////////////////
// watch
// ///////////////////////////////////////////////

func (c *cli) watchCmd() *cobra.Command {
	var (
		debounce     time.Duration
		pollInterval time.Duration
		forcePoll    bool
	)
	cmd := &cobra.Command{
		Use:   "watch [manifest...]",
		Short: "Re-sync manifests whenever HEAD, the index or refs change",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := watch.New(paths.Workspace{Root: c.root}.Git(), watch.Options{
				PollInterval: pollInterval,
				ForcePolling: forcePoll,
			})
			if err != nil {
				return err
			}
			defer w.Close()
			slog.Info("watching repository", "root", c.root, "polling", w.Polling())

			err = watch.Run(cmd.Context(), w, debounce, func(ctx context.Context) {
				err := c.runSync(ctx, args)
				switch code := exitCode(err); {
				case err == nil:
				case code == exitFatal:
					slog.Error("synchronization failed", "error", err)
				default:
					slog.Warn(err.Error())
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before re-running after a change")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "scan period when polling")
	cmd.Flags().BoolVar(&forcePoll, "poll", false, "poll instead of using native file notifications")
	return cmd
}

// ///////////////////////////////////////////////
// init
// ///////////////////////////////////////////////

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented " + paths.ConfigFile + " with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.configFile()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteAnnotated(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			slog.Info("wrote config", "path", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
