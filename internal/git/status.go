package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConflictOp identifies which operation an in-progress conflict came from.
type ConflictOp string

const (
	ConflictOpMerge  ConflictOp = "merge"
	ConflictOpRebase ConflictOp = "rebase"
)

// AheadBehind returns how many commits branch is ahead of and behind base.
func (s *Service) AheadBehind(dir, branch, base string) (ahead, behind int, err error) {
	out, err := s.run(dir, "rev-list", "--left-right", "--count", branch+"..."+base)
	if err != nil {
		return 0, 0, &GitError{Op: "count commits", Err: err}
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	ahead, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	behind, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	return ahead, behind, nil
}

// WorktreeCounts returns the number of uncommitted (tracked, modified or
// staged) and untracked files in the worktree.
func (s *Service) WorktreeCounts(worktreePath string) (uncommitted, untracked int, err error) {
	out, err := s.run(worktreePath, "status", "--porcelain")
	if err != nil {
		return 0, 0, &GitError{Op: "status", Err: err}
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 2 {
			continue
		}
		if strings.HasPrefix(line, "??") {
			untracked++
		} else {
			uncommitted++
		}
	}
	return uncommitted, untracked, nil
}

// IsClean reports whether the worktree has no uncommitted or untracked files.
func (s *Service) IsClean(worktreePath string) (bool, error) {
	uncommitted, untracked, err := s.WorktreeCounts(worktreePath)
	if err != nil {
		return false, err
	}
	return uncommitted == 0 && untracked == 0, nil
}

// RebaseInProgress reports whether a rebase is active in the worktree.
// Git tracks an active rebase through the rebase-merge or rebase-apply
// directory under the worktree's git dir.
func (s *Service) RebaseInProgress(worktreePath string) (bool, error) {
	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		path, err := s.run(worktreePath, "rev-parse", "--git-path", dir)
		if err != nil {
			return false, &GitError{Op: "resolve git path", Err: err}
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(worktreePath, path)
		}
		if _, err := os.Stat(path); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// ConflictedFiles returns the paths with unresolved conflicts and, when any
// exist, which operation produced them. Rebase state takes precedence since
// a conflicted rebase also leaves MERGE_MSG style markers around.
func (s *Service) ConflictedFiles(worktreePath string) ([]string, ConflictOp, error) {
	out, err := s.run(worktreePath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, "", &GitError{Op: "list conflicts", Err: err}
	}
	if out == "" {
		return nil, "", nil
	}
	files := strings.Split(out, "\n")

	rebasing, err := s.RebaseInProgress(worktreePath)
	if err != nil {
		return nil, "", err
	}
	op := ConflictOpMerge
	if rebasing {
		op = ConflictOpRebase
	}
	return files, op, nil
}
