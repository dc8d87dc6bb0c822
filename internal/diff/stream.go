package diff

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// debounceInterval coalesces bursts of filesystem events into one
	// recompute. Coding agents tend to write many files in quick
	// succession.
	debounceInterval = 250 * time.Millisecond

	// refreshInterval forces a periodic recompute even without events,
	// covering edits fsnotify missed (e.g. in directories created after
	// the walk raced the watcher).
	refreshInterval = 10 * time.Second
)

// Update is one element of a diff stream.
type Update struct {
	Snapshot *Snapshot
	Err      error
}

// Stream watches a worktree and sends a fresh Snapshot whenever its contents
// change, starting with one immediately. The channel closes when ctx is
// cancelled or the watcher fails. Consumers that fall behind miss
// intermediate snapshots but always receive the latest.
func (s *Service) Stream(ctx context.Context, worktreePath, targetBranch string, statsOnly bool, logger *slog.Logger) (<-chan Update, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watchTree(watcher, worktreePath); err != nil {
		watcher.Close()
		return nil, err
	}

	updates := make(chan Update, 1)
	go s.pump(ctx, watcher, worktreePath, targetBranch, statsOnly, logger, updates)
	return updates, nil
}

func (s *Service) pump(ctx context.Context, watcher *fsnotify.Watcher, worktreePath, targetBranch string, statsOnly bool, logger *slog.Logger, updates chan<- Update) {
	defer watcher.Close()
	defer close(updates)

	send := func(contentChanged bool) bool {
		if contentChanged && s.cache != nil {
			// Cached file diffs embed working-tree content and are
			// stale once anything was written.
			s.cache.Clear()
		}
		snapshot, err := s.GetSnapshot(ctx, worktreePath, targetBranch, statsOnly)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warn("diff snapshot failed", "worktree", worktreePath, "error", err)
			select {
			case updates <- Update{Err: err}:
			case <-ctx.Done():
				return false
			}
			return true
		}
		select {
		case updates <- Update{Snapshot: snapshot}:
		case <-ctx.Done():
			return false
		}
		return true
	}

	if !send(true) {
		return
	}

	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ignoredPath(event.Name) {
				continue
			}
			// New directories need their own watches.
			if event.Op.Has(fsnotify.Create) {
				if err := watchTree(watcher, event.Name); err != nil {
					logger.Debug("watch new path", "path", event.Name, "error", err)
				}
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceInterval)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceInterval)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			if !send(true) {
				return
			}

		case <-refresh.C:
			if !send(false) {
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("diff watcher error", "worktree", worktreePath, "error", err)
		}
	}
}

// watchTree registers watches for root and every directory beneath it,
// skipping git metadata. Non-directories are ignored.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The path may have vanished between event and walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// ignoredPath filters events from git's own bookkeeping, which would
// otherwise cause a recompute loop during every git invocation.
func ignoredPath(path string) bool {
	return strings.Contains(path, string(filepath.Separator)+".git"+string(filepath.Separator)) ||
		strings.HasSuffix(path, string(filepath.Separator)+".git")
}
