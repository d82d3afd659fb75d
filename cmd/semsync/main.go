// Package main implements semsync, which derives a project's semantic version
// from git history and keeps every alire.toml manifest in the tree in step
// with it.
//
// Exit status:
//
//	0  every manifest already carried the version (or the tag check passed)
//	1  a manifest was rewritten, a check failed, or a manifest could not be processed
//	2  fatal: bad usage or config, git unavailable, unusable baseline
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"tools.zach/dev/semsync/internal/config"
	"tools.zach/dev/semsync/internal/logger"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// buildVersion is set at build time via ldflags:
//
//	go build -ldflags "-X main.buildVersion=$(semsync print)"
//
// When unset, resolveVersion falls back to the VCS info embedded by the Go
// toolchain.
var buildVersion = "dev"

// resolveVersion returns the build version string. If [buildVersion] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state produce a "dev+<hash>" string.
func resolveVersion() string {
	if buildVersion != "dev" {
		return buildVersion
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return buildVersion
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return buildVersion
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Exit Codes
// ///////////////////////////////////////////////

const (
	exitOK      = 0
	exitChanged = 1
	exitFatal   = 2
)

// exitError carries a specific process exit status out of a command.
// Commands return it for the non-fatal "something changed or failed a check"
// outcome; any other error is fatal.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

// ///////////////////////////////////////////////
// Entry Point
// ///////////////////////////////////////////////

// signalContext returns a context cancelled on the first shutdown signal.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := signalChannel()
	go func() {
		select {
		case s := <-sig:
			slog.Info("received signal, stopping", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// run executes the CLI with args and returns the process exit status.
func run(ctx context.Context, args []string, d deps) int {
	c := newCLI(d)
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(d.stdout)
	root.SetErr(d.stderr)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	switch {
	case err == nil:
	case c.log == nil:
		// Failed before the logger existed: bad flags or config.
		fmt.Fprintf(d.stderr, "fatal: %v\n", err)
	case code == exitFatal:
		logger.Fail(c.log, "fatal", "error", err)
	default:
		c.log.Warn(err.Error())
	}
	return code
}

func main() {
	ctx, cancel := signalContext()
	code := run(ctx, os.Args[1:], deps{
		env:     config.EnvFrom(os.LookupEnv),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		backend: openBackend,
	})
	cancel()
	os.Exit(code)
}

// deps are the process-level collaborators injected into the CLI.
type deps struct {
	env     config.Env
	stdout  io.Writer
	stderr  io.Writer
	backend backendFactory
}
