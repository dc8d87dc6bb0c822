// Package workspace materializes attempt worktrees and supervises the
// processes running inside them.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/diff"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
)

// Container maps attempts to a filesystem arena of worktrees, one per
// linked repository, and owns the processes dispatched into them.
type Container struct {
	root   string
	store  *db.Store
	git    *git.Service
	diffs  *diff.Service
	events events.Publisher
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]*processHandle
}

// NewContainer creates a container rooted at root.
func NewContainer(root string, store *db.Store, gitSvc *git.Service, diffSvc *diff.Service, publisher events.Publisher, logger *slog.Logger) *Container {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{
		root:    root,
		store:   store,
		git:     gitSvc,
		diffs:   diffSvc,
		events:  publisher,
		logger:  logger,
		running: make(map[string]*processHandle),
	}
}

// AttemptDir returns the arena directory for an attempt.
func (c *Container) AttemptDir(attemptID string) string {
	return filepath.Join(c.root, attemptID)
}

// WorktreePath returns the worktree directory for one repo of an attempt.
func (c *Container) WorktreePath(attemptID, repoName string) string {
	return filepath.Join(c.root, attemptID, repoName)
}

// EnsureWorktrees creates the attempt's worktrees for every linked repo.
// Idempotent: existing worktrees are left alone. Repos are materialized
// concurrently since they are independent repositories. On first creation,
// project-configured copy_files globs are copied from the source repo into
// the worktree so untracked local files (env files, credentials) follow.
func (c *Container) EnsureWorktrees(ctx context.Context, attempt *db.Attempt) error {
	repos, err := c.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return fmt.Errorf("attempt %s has no linked repos", attempt.ID)
	}

	project, err := c.store.GetProjectForAttempt(attempt.ID)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	for _, info := range repos {
		g.Go(func() error {
			wtPath := c.WorktreePath(attempt.ID, info.Repo.Name)
			_, statErr := os.Stat(wtPath)
			existed := statErr == nil

			if err := c.git.EnsureWorktree(info.Repo.Path, wtPath, attempt.Branch, info.TargetBranch); err != nil {
				return fmt.Errorf("repo %s: %w", info.Repo.Name, err)
			}
			if existed {
				return nil
			}

			globs, err := c.store.GetCopyFiles(project.ID, info.Repo.ID)
			if err != nil {
				return err
			}
			if globs == "" {
				return nil
			}
			patterns := splitGlobs(globs)
			if err := copyGlobs(info.Repo.Path, wtPath, patterns); err != nil {
				// Copy failures must not block the attempt; the
				// worktree itself is usable.
				c.logger.Warn("copy files into worktree failed",
					"attempt", attempt.ID, "repo", info.Repo.Name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Cleanup removes every worktree of an attempt and its arena directory.
// Called when the owning task is deleted; never invoked implicitly.
func (c *Container) Cleanup(ctx context.Context, attempt *db.Attempt) error {
	repos, err := c.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		return err
	}
	for _, info := range repos {
		wtPath := c.WorktreePath(attempt.ID, info.Repo.Name)
		if err := c.git.RemoveWorktree(info.Repo.Path, wtPath); err != nil {
			c.logger.Warn("remove worktree failed",
				"attempt", attempt.ID, "repo", info.Repo.Name, "error", err)
		}
	}
	if err := os.RemoveAll(c.AttemptDir(attempt.ID)); err != nil {
		return fmt.Errorf("remove attempt dir: %w", err)
	}
	return nil
}

// RestoreToProcess resets every repo worktree to its recorded state before
// the given process ran. Dirty worktrees abort the restore unless
// forceWhenDirty is set.
func (c *Container) RestoreToProcess(ctx context.Context, attempt *db.Attempt, processID string, forceWhenDirty bool) error {
	states, err := c.store.GetProcessRepoStates(processID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("process %s has no recorded repo states", processID)
	}

	repos, err := c.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		return err
	}
	repoByID := make(map[string]db.Repo, len(repos))
	for _, info := range repos {
		repoByID[info.Repo.ID] = info.Repo
	}

	if !forceWhenDirty {
		for _, state := range states {
			repo, ok := repoByID[state.RepoID]
			if !ok {
				continue
			}
			wtPath := c.WorktreePath(attempt.ID, repo.Name)
			clean, err := c.git.IsClean(wtPath)
			if err != nil {
				return err
			}
			if !clean {
				return fmt.Errorf("%w: %s", git.ErrWorktreeDirty, repo.Name)
			}
		}
	}

	for _, state := range states {
		repo, ok := repoByID[state.RepoID]
		if !ok {
			continue
		}
		wtPath := c.WorktreePath(attempt.ID, repo.Name)
		if err := c.git.ResetHard(wtPath, state.BeforeHeadCommit); err != nil {
			return fmt.Errorf("restore %s: %w", repo.Name, err)
		}
	}
	return nil
}

// StreamDiff streams diff snapshots for one repo of an attempt.
func (c *Container) StreamDiff(ctx context.Context, attempt *db.Attempt, repoID string, statsOnly bool) (<-chan diff.Update, error) {
	repos, err := c.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		return nil, err
	}
	for _, info := range repos {
		if info.Repo.ID == repoID {
			wtPath := c.WorktreePath(attempt.ID, info.Repo.Name)
			return c.diffs.Stream(ctx, wtPath, info.TargetBranch, statsOnly, c.logger)
		}
	}
	return nil, fmt.Errorf("repo %s not linked to attempt %s", repoID, attempt.ID)
}

func splitGlobs(globs string) []string {
	parts := strings.Split(globs, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
