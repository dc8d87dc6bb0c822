package git

import (
	"errors"
	"strings"
)

// Sentinel errors classified out of raw git command failures.
// Callers branch on these to turn low-level failures into the typed
// outcomes the integration endpoints report.
var (
	// ErrNotGitRepo indicates the path is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrBranchExists indicates the branch already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound indicates the branch does not exist locally or remotely.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrWorktreeNotFound indicates the worktree is not registered.
	ErrWorktreeNotFound = errors.New("worktree not found")

	// ErrMergeConflicts indicates a merge or rebase stopped on conflicts.
	ErrMergeConflicts = errors.New("merge conflicts")

	// ErrRebaseInProgress indicates a rebase is already active in the worktree.
	ErrRebaseInProgress = errors.New("rebase in progress")

	// ErrNonFastForward indicates the remote rejected a non-force push.
	ErrNonFastForward = errors.New("push rejected: non-fast-forward")

	// ErrWorktreeDirty indicates the working tree has uncommitted changes.
	ErrWorktreeDirty = errors.New("worktree has uncommitted changes")
)

// GitError wraps a git command failure with the operation that ran it.
type GitError struct {
	Op     string // operation that failed, e.g. "merge", "push"
	Output string // combined stdout/stderr output
	Err    error  // underlying error
}

func (e *GitError) Error() string {
	if e.Output != "" {
		return e.Op + ": " + e.Output
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// IsNonFastForwardError reports whether a push failure is a divergent-history
// rejection that a force push would resolve.
func IsNonFastForwardError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNonFastForward) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "non-fast-forward") ||
		(strings.Contains(errStr, "rejected") && strings.Contains(errStr, "fetch first")) ||
		(strings.Contains(errStr, "failed to push") && strings.Contains(errStr, "behind"))
}

// isConflictOutput reports whether git output indicates the operation
// stopped on content conflicts.
func isConflictOutput(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(out, "CONFLICT") ||
		strings.Contains(lower, "could not apply") ||
		strings.Contains(lower, "needs merge") ||
		strings.Contains(lower, "resolve all conflicts")
}

// isRebaseInProgressOutput reports whether git refused to start because a
// rebase is already active.
func isRebaseInProgressOutput(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "rebase already started") ||
		strings.Contains(lower, "rebase-merge directory") ||
		strings.Contains(lower, "it seems that there is already a rebase")
}
