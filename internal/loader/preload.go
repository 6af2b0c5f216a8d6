package loader

import (
	"context"
	"path"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quasarhq/quasar/internal/logging"
	"github.com/quasarhq/quasar/internal/sandbox"
)

const (
	// DefaultPreloadDelay keeps speculative loads from competing with the
	// foreground load that just triggered them.
	DefaultPreloadDelay = 500 * time.Millisecond

	maxPreloadTargets = 2
	siblingSizeLimit  = 100 * 1024 // 100 KB
	entrySizeLimit    = 50 * 1024  // 50 KB
)

// TreeSnapshot is the caller-supplied view of the session's file tree used
// for preload candidate selection.
type TreeSnapshot struct {
	Files []sandbox.FileInfo
	// EntryPath is the project's designated entry file, if any.
	EntryPath string
}

// SmartPreload heuristically warms the cache with files adjacent to the one
// just opened: up to two small same-directory siblings, considering the
// entry file first. Fire-and-forget; runs after the preload delay.
func (l *Loader) SmartPreload(currentPath string, tree TreeSnapshot) {
	sessionID, err := l.sessions.Require()
	if err != nil {
		return
	}

	targets := l.preloadCandidates(sessionID, currentPath, tree)
	if len(targets) == 0 {
		return
	}

	l.afterFunc(l.preloadDelay, func() {
		warmed := l.PreloadFiles(context.Background(), targets)
		logging.Op().Debug("smart preload finished",
			"current", currentPath, "targets", len(targets), "warmed", warmed)
	})
}

// preloadCandidates selects at most maxPreloadTargets paths worth warming.
func (l *Loader) preloadCandidates(sessionID, currentPath string, tree TreeSnapshot) []string {
	var targets []string

	if entry := tree.EntryPath; entry != "" && entry != currentPath && !l.cache.Has(sessionID, entry) {
		if size, ok := snapshotSize(tree, entry); ok && size < entrySizeLimit {
			targets = append(targets, entry)
		}
	}

	dir := path.Dir(currentPath)
	for _, fi := range tree.Files {
		if len(targets) >= maxPreloadTargets {
			break
		}
		if fi.IsDir || fi.Path == currentPath || fi.Path == tree.EntryPath {
			continue
		}
		if path.Dir(fi.Path) != dir || fi.Size >= siblingSizeLimit {
			continue
		}
		if l.cache.Has(sessionID, fi.Path) {
			continue
		}
		targets = append(targets, fi.Path)
	}

	return targets
}

func snapshotSize(tree TreeSnapshot, p string) (int64, bool) {
	for _, fi := range tree.Files {
		if fi.Path == p {
			return fi.Size, true
		}
	}
	return 0, false
}

// PreloadFiles warms the cache with the given paths concurrently. Individual
// failures are tolerated; the return value is the number of files actually
// warmed, for logging only.
func (l *Loader) PreloadFiles(ctx context.Context, paths []string) int {
	var warmed atomic.Int64
	g := new(errgroup.Group)
	for _, p := range paths {
		g.Go(func() error {
			res, err := l.Load(ctx, p, LoadOptions{Preload: true, Priority: "low"})
			if err != nil {
				logging.Op().Debug("preload failed", "path", p, "error", err)
				return nil // all-settled: never abort the batch
			}
			if res.Success {
				warmed.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	return int(warmed.Load())
}
