package git

import (
	"fmt"
	"strings"
)

// MergeBranches merges sourceBranch into targetBranch and returns the new
// merge commit id. The merge is performed in memory with merge-tree and the
// target ref is advanced with compare-and-swap semantics, so neither the
// main checkout nor any worktree is touched. Returns ErrMergeConflicts when
// the trees do not merge cleanly.
func (s *Service) MergeBranches(repoPath, sourceBranch, targetBranch, message string) (string, error) {
	targetCommit, err := s.HeadCommit(repoPath, targetBranch)
	if err != nil {
		return "", err
	}
	sourceCommit, err := s.HeadCommit(repoPath, sourceBranch)
	if err != nil {
		return "", err
	}

	out, err := s.run(repoPath, "merge-tree", "--write-tree", targetBranch, sourceBranch)
	if err != nil {
		// merge-tree exits 1 on content conflicts and prints the
		// conflicted paths after the tree id.
		if isConflictOutput(err.Error()) || strings.Contains(err.Error(), "exit status 1") {
			return "", fmt.Errorf("%w: %s", ErrMergeConflicts, conflictSummary(err.Error()))
		}
		return "", &GitError{Op: "merge", Err: err}
	}
	tree := firstLine(out)

	commit, err := s.run(repoPath, "commit-tree", tree,
		"-p", targetCommit, "-p", sourceCommit, "-m", message)
	if err != nil {
		return "", &GitError{Op: "merge commit", Err: err}
	}

	ref := "refs/heads/" + targetBranch
	if _, err := s.run(repoPath, "update-ref", ref, commit, targetCommit); err != nil {
		return "", &GitError{Op: "advance " + targetBranch, Err: err}
	}
	return commit, nil
}

// Rebase rebases the branch checked out in the worktree from oldBase onto
// newBase. Outcomes are classified: ErrMergeConflicts when the rebase stops
// on conflicts (the rebase is left in progress for the caller to resolve or
// abort), ErrRebaseInProgress when another rebase is already active.
func (s *Service) Rebase(worktreePath, branch, oldBase, newBase string) error {
	if active, err := s.RebaseInProgress(worktreePath); err != nil {
		return err
	} else if active {
		return ErrRebaseInProgress
	}

	args := []string{"rebase"}
	if oldBase != "" && oldBase != newBase {
		args = append(args, "--onto", newBase, oldBase, branch)
	} else {
		args = append(args, newBase)
	}

	out, err := s.run(worktreePath, args...)
	if err == nil {
		return nil
	}
	combined := out + " " + err.Error()
	if isRebaseInProgressOutput(combined) {
		return ErrRebaseInProgress
	}
	if isConflictOutput(combined) {
		return fmt.Errorf("%w: %s", ErrMergeConflicts, conflictSummary(err.Error()))
	}
	return &GitError{Op: "rebase onto " + newBase, Err: err}
}

// AbortConflicts aborts whatever merge or rebase is in progress in the
// worktree. Idempotent: a worktree with nothing in progress is a no-op.
func (s *Service) AbortConflicts(worktreePath string) error {
	rebasing, err := s.RebaseInProgress(worktreePath)
	if err != nil {
		return err
	}
	if rebasing {
		if _, err := s.run(worktreePath, "rebase", "--abort"); err != nil {
			return &GitError{Op: "abort rebase", Err: err}
		}
		return nil
	}

	if _, err := s.run(worktreePath, "merge", "--abort"); err != nil {
		// No merge to abort is the idempotent case.
		if strings.Contains(err.Error(), "MERGE_HEAD missing") ||
			strings.Contains(err.Error(), "no merge to abort") {
			return nil
		}
		return &GitError{Op: "abort merge", Err: err}
	}
	return nil
}

// Push pushes the branch to the remote. When force is true the push uses
// --force-with-lease, which still fails if the remote moved past what was
// last fetched. Non-force pushes rejected for divergent history return
// ErrNonFastForward so the caller can surface a retry-with-force outcome.
func (s *Service) Push(worktreePath, remote, branch string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, "-u", remote, branch)

	if _, err := s.run(worktreePath, args...); err != nil {
		if !force && IsNonFastForwardError(err) {
			return fmt.Errorf("%w: %s", ErrNonFastForward, err.Error())
		}
		return &GitError{Op: "push " + branch, Err: err}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// conflictSummary trims conflict output to the CONFLICT lines when present.
func conflictSummary(out string) string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "CONFLICT") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return firstLine(out)
	}
	return strings.Join(lines, "; ")
}
