// Package watch signals when a repository's version inputs change, so the
// manifests can be re-synchronized while a developer works.
//
// Change detection uses fsnotify on the .git directory and every directory
// below .git/refs, and falls back to modification-time polling when native
// notifications are unavailable.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"tools.zach/dev/semsync/internal/paths"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors a git directory for commits, checkouts, tag creation and
// staging.
type Watcher struct {
	// gitDir is the watched .git directory.
	gitDir string
	// events delivers a signal each time a relevant file changes.
	// The channel is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}
	// mu guards fsw, which is nil when polling.
	mu  sync.Mutex
	fsw *fsnotify.Watcher
	// once ensures [Watcher.Close] is idempotent.
	once sync.Once
	// polling is true when the watcher has fallen back to stat-based polling.
	polling atomic.Bool
	// pollInterval is the duration between scans in polling mode.
	pollInterval time.Duration
}

// Options tunes a Watcher.
type Options struct {
	// PollInterval is the scan period in polling mode. Defaults to 2s.
	PollInterval time.Duration
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
}

// New starts watching gitDir.
func New(gitDir string, opts Options) (*Watcher, error) {
	info, err := os.Stat(gitDir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", gitDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", gitDir)
	}

	w := &Watcher{
		gitDir:       gitDir,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: opts.PollInterval,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Second
	}

	if opts.ForcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	for _, dir := range w.watchDirs() {
		if err := fsw.Add(dir); err != nil {
			slog.Info("cannot watch directory, falling back to polling", "path", dir, "error", err)
			fsw.Close()
			w.startPolling()
			return w, nil
		}
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// watchDirs returns the .git directory and every directory under .git/refs.
func (w *Watcher) watchDirs() []string {
	dirs := []string{w.gitDir}
	refs := filepath.Join(w.gitDir, paths.GitRefs)
	_ = filepath.WalkDir(refs, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs
}

// relevant reports whether a change to name can alter the computed version.
func (w *Watcher) relevant(name string) bool {
	rel, err := filepath.Rel(w.gitDir, name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	switch rel {
	case paths.GitHEAD, paths.GitIndex, "packed-refs":
		return true
	}
	return strings.HasPrefix(rel, paths.GitRefs+"/") && !strings.HasSuffix(rel, ".lock")
}

// watch loops over fsnotify events and forwards relevant changes to the
// events channel. New directories under refs are added as they appear. On
// an fsnotify error the native watcher is closed and polling takes over.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fsw.Add(event.Name); err != nil {
						slog.Debug("cannot watch new ref directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Op == fsnotify.Chmod || !w.relevant(event.Name) {
				continue
			}
			slog.Debug("git change", "path", event.Name, "op", event.Op.String())
			w.notify()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			w.fsw = nil
			w.mu.Unlock()
			fsw.Close()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll periodically scans the watched files and sends a notification when
// the newest modification time advances.
func (w *Watcher) poll() {
	lastMod := w.latestMod()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if mod := w.latestMod(); mod.After(lastMod) {
				lastMod = mod
				w.notify()
			}
		}
	}
}

// latestMod returns the most recent modification time among the relevant
// files under the git directory.
func (w *Watcher) latestMod() time.Time {
	var latest time.Time
	consider := func(p string, info fs.FileInfo) {
		if w.relevant(p) && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	for _, name := range []string{paths.GitHEAD, paths.GitIndex, "packed-refs"} {
		p := filepath.Join(w.gitDir, name)
		if info, err := os.Stat(p); err == nil {
			consider(p, info)
		}
	}
	_ = filepath.WalkDir(filepath.Join(w.gitDir, paths.GitRefs), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			consider(p, info)
		}
		return nil
	})
	return latest
}

// notify sends a single signal to the events channel. If a signal is already
// pending the call is a no-op, coalescing rapid successive changes.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the repository changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		if fsw != nil {
			if closeErr := fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// ///////////////////////////////////////////////
// Run loop
// ///////////////////////////////////////////////

// Run calls fn once immediately and then again after every burst of changes
// has been quiet for debounce, until ctx is cancelled.
func Run(ctx context.Context, w *Watcher, debounce time.Duration, fn func(context.Context)) error {
	fn(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Events():
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fn(ctx)
		}
	}
}
