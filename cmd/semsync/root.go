package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tools.zach/dev/semsync/internal/config"
	"tools.zach/dev/semsync/internal/logger"
	"tools.zach/dev/semsync/internal/paths"
)

// cli holds flag values and the state shared by every subcommand for one
// invocation.
type cli struct {
	d deps

	// Global flags.
	logLevel     string
	logFile      string
	forceVersion string
	configPath   string
	dir          string

	// Set by prepare.
	root      string
	cfg       *config.Config
	log       *slog.Logger
	logCloser io.Closer
	backend   repoBackend
}

func newCLI(d deps) *cli {
	if d.backend == nil {
		d.backend = openBackend
	}
	return &cli{d: d}
}

// close flushes the log file, if any.
func (c *cli) close() {
	if c.logCloser != nil {
		c.logCloser.Close()
	}
}

// ///////////////////////////////////////////////
// Root Command
// ///////////////////////////////////////////////

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   paths.BinaryName + " [manifest...]",
		Short: "Derive a semantic version from git and sync it into alire.toml manifests",
		Long: `semsync computes the project version from the latest reachable tag, the
number of non-merge commits since it and the cleanliness of the working tree,
then writes that version into every alire.toml below the workspace root.

Without a subcommand it runs "sync". It exits 1 when any manifest had to be
rewritten so CI can fail on out-of-date manifests.`,
		Example: `  # Bring every manifest up to date
  semsync

  # Only the given manifests
  semsync alire.toml tests/alire.toml

  # Check the release tag during a tag build
  GITHUB_REF=refs/tags/v1.2.0 semsync verify-tag

  # Embed the derived version in a Go binary
  go build -ldflags "-X main.buildVersion=$(semsync print)"`,
		Version:           resolveVersion(),
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.prepare,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd.Context(), args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.logLevel, "log-level", "", "log level name (trace, debug, info, warn, error, fail) or integer")
	pf.StringVar(&c.logFile, "log-file", "", "also write the log to this file")
	pf.StringVar(&c.forceVersion, "force-version", "", "use this semantic version instead of the derived one")
	pf.StringVar(&c.configPath, "config", "", "config file (default <workspace>/"+paths.ConfigFile+")")
	pf.StringVar(&c.dir, "dir", "", "workspace root (default $GITHUB_WORKSPACE or the current directory)")

	root.AddCommand(
		c.syncCmd(),
		c.printCmd(),
		c.verifyTagCmd(),
		c.watchCmd(),
		c.initCmd(),
	)
	return root
}

// prepare resolves the workspace, loads the config and installs the logger.
func (c *cli) prepare(cmd *cobra.Command, _ []string) error {
	root, err := filepath.Abs(c.workspaceDir())
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	c.root = root

	if cmd.Name() == "init" {
		c.cfg = config.DefaultConfig()
	} else {
		cfg, err := config.Load(c.configFile())
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	levelName := c.cfg.Log.Level
	if c.logLevel != "" {
		levelName = c.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return err
	}
	file := c.cfg.Log.File
	if c.logFile != "" {
		file = c.logFile
	}
	c.log, c.logCloser = logger.New(logger.Options{
		Level:     level,
		Console:   c.d.stderr,
		File:      file,
		MaxSizeMB: c.cfg.Log.MaxSizeMB,
	})
	slog.SetDefault(c.log)
	logger.Trace(c.log, "semsync starting", "version", resolveVersion(), "root", c.root)
	return nil
}

// workspaceDir returns --dir, then GITHUB_WORKSPACE, then ".".
func (c *cli) workspaceDir() string {
	if c.dir != "" {
		return c.dir
	}
	return c.d.env.Root(".")
}

// configFile returns --config, or the workspace config path.
func (c *cli) configFile() string {
	if c.configPath != "" {
		return c.configPath
	}
	return paths.Workspace{Root: c.root}.Config()
}

// repo opens the version-control backend on first use.
func (c *cli) repo() (repoBackend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	b, err := c.d.backend(c.cfg, c.root)
	if err != nil {
		return nil, err
	}
	c.backend = b
	return b, nil
}

// ///////////////////////////////////////////////
// Run Lock
// ///////////////////////////////////////////////

// errLocked is returned when another run holds the workspace lock.
var errLocked = errors.New("another semsync run is in progress")

// lock takes the workspace run lock in .git. Outside a git checkout there is
// nothing to lock against and a no-op release is returned. The lock file is
// left in place on release; removing it would race a waiting run.
func (c *cli) lock() (release func(), err error) {
	ws := paths.Workspace{Root: c.root}
	if fi, err := os.Stat(ws.Git()); err != nil || !fi.IsDir() {
		slog.Debug("no .git directory, running without lock", "root", c.root)
		return func() {}, nil
	}
	f, err := os.OpenFile(ws.Lock(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open run lock: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", errLocked, err)
	}
	return func() {
		_ = unlockFile(f)
		f.Close()
	}, nil
}
