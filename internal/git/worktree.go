package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorktreeInfo describes an active git worktree.
type WorktreeInfo struct {
	Path   string // filesystem path to the worktree
	Branch string // branch checked out in the worktree
	Commit string // HEAD commit id
}

// EnsureWorktree creates a worktree at worktreePath with branch checked out,
// branching off baseBranch if the branch does not exist yet. The call is
// idempotent: an existing worktree registered at the path is left alone.
// Stale registrations (directory deleted but still tracked) are pruned and
// the creation retried.
func (s *Service) EnsureWorktree(repoPath, worktreePath, branch, baseBranch string) error {
	absPath, err := filepath.Abs(worktreePath)
	if err != nil {
		return fmt.Errorf("resolve worktree path: %w", err)
	}

	if wt, err := s.worktreeAt(repoPath, absPath); err == nil && wt != nil {
		if _, statErr := os.Stat(absPath); statErr == nil {
			return nil
		}
		// Registered but the directory is gone. Prune and recreate.
		_, _ = s.run(repoPath, "worktree", "prune")
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create worktree parent dir: %w", err)
	}

	if _, err := s.addWorktree(repoPath, absPath, branch, baseBranch); err != nil {
		return fmt.Errorf("create worktree for %s: %w", branch, err)
	}
	return nil
}

// addWorktree tries a new-branch add first, falls back to attaching an
// existing branch, then prunes stale registrations and retries both.
func (s *Service) addWorktree(repoPath, worktreePath, branch, baseBranch string) (string, error) {
	out, err := s.run(repoPath, "worktree", "add", "-b", branch, worktreePath, baseBranch)
	if err == nil {
		return out, nil
	}

	out, err = s.run(repoPath, "worktree", "add", worktreePath, branch)
	if err == nil {
		return out, nil
	}

	_, _ = s.run(repoPath, "worktree", "prune")

	out, err = s.run(repoPath, "worktree", "add", "-b", branch, worktreePath, baseBranch)
	if err == nil {
		return out, nil
	}

	out, err = s.run(repoPath, "worktree", "add", worktreePath, branch)
	if err == nil {
		return out, nil
	}

	return "", err
}

// RemoveWorktree removes a worktree and its registration. Removal is forced
// on retry so dirty worktrees do not survive cleanup. Missing worktrees are
// a no-op.
func (s *Service) RemoveWorktree(repoPath, worktreePath string) error {
	if worktreePath == "" {
		return nil
	}
	_, err := s.run(repoPath, "worktree", "remove", worktreePath)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "is not a working tree") {
		return nil
	}
	if _, err = s.run(repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		return &GitError{Op: "remove worktree", Err: err}
	}
	return nil
}

// PruneWorktrees drops stale worktree registrations. Safe to call any time.
func (s *Service) PruneWorktrees(repoPath string) error {
	if _, err := s.run(repoPath, "worktree", "prune"); err != nil {
		return &GitError{Op: "prune worktrees", Err: err}
	}
	return nil
}

// ListWorktrees returns all worktrees registered in the repository.
func (s *Service) ListWorktrees(repoPath string) ([]WorktreeInfo, error) {
	out, err := s.run(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, &GitError{Op: "list worktrees", Err: err}
	}

	var worktrees []WorktreeInfo
	var current WorktreeInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if current.Path != "" {
				worktrees = append(worktrees, current)
				current = WorktreeInfo{}
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "detached":
			current.Branch = "(detached)"
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees, nil
}

// worktreeAt returns the registered worktree at path, or ErrWorktreeNotFound.
func (s *Service) worktreeAt(repoPath, path string) (*WorktreeInfo, error) {
	worktrees, err := s.ListWorktrees(repoPath)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	for _, wt := range worktrees {
		wtAbs, err := filepath.Abs(wt.Path)
		if err != nil {
			continue
		}
		if wtAbs == absPath {
			return &wt, nil
		}
	}
	return nil, ErrWorktreeNotFound
}
