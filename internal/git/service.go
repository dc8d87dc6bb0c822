package git

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Service runs git plumbing against registered repositories and their
// worktrees. All methods take the directory to operate in explicitly; the
// service itself holds no per-repository state and is safe for concurrent
// use across repositories. Callers are responsible for not mutating the
// same worktree from two operations at once.
type Service struct {
	runner CommandRunner
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRunner sets a custom command runner, used by tests to script
// command execution.
func WithRunner(r CommandRunner) ServiceOption {
	return func(s *Service) { s.runner = r }
}

// WithLogger sets the logger for best-effort operation warnings.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service with the default exec-backed runner.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		runner: NewExecRunner(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureRepo verifies that path is a git repository.
func (s *Service) EnsureRepo(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = absPath
	if err := cmd.Run(); err != nil {
		return ErrNotGitRepo
	}
	return nil
}

// run executes a git command in dir and returns the trimmed stdout.
func (s *Service) run(dir string, args ...string) (string, error) {
	return s.runner.Run(dir, "git", args...)
}

// CurrentBranch returns the branch checked out in dir.
func (s *Service) CurrentBranch(dir string) (string, error) {
	branch, err := s.run(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &GitError{Op: "current branch", Err: err}
	}
	return branch, nil
}

// HeadCommit returns the commit id a ref resolves to in dir. An empty ref
// resolves HEAD.
func (s *Service) HeadCommit(dir, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	sha, err := s.run(dir, "rev-parse", ref)
	if err != nil {
		return "", &GitError{Op: "resolve " + ref, Err: err}
	}
	return sha, nil
}

// BranchType reports how a branch name resolves in the repository.
type BranchType int

const (
	// BranchTypeNone means the name resolves to no branch.
	BranchTypeNone BranchType = iota
	// BranchTypeLocal means refs/heads/<name> exists.
	BranchTypeLocal
	// BranchTypeRemote means the name resolves only as a remote-tracking
	// branch (refs/remotes/<name>).
	BranchTypeRemote
)

// ResolveBranchType classifies a branch name as local, remote-tracking, or
// missing. The name may carry a remote prefix like "origin/main".
func (s *Service) ResolveBranchType(repoPath, name string) (BranchType, error) {
	local, err := s.BranchExists(repoPath, name)
	if err != nil {
		return BranchTypeNone, err
	}
	if local {
		return BranchTypeLocal, nil
	}
	if _, err := s.run(repoPath, "show-ref", "--verify", "--quiet", "refs/remotes/"+name); err == nil {
		return BranchTypeRemote, nil
	}
	if _, err := s.run(repoPath, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name); err == nil {
		return BranchTypeRemote, nil
	}
	return BranchTypeNone, nil
}

// BranchExists checks whether a local branch exists.
func (s *Service) BranchExists(repoPath, branch string) (bool, error) {
	_, err := s.run(repoPath, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		if strings.Contains(err.Error(), "exit status 1") {
			return false, nil
		}
		return false, fmt.Errorf("check branch %s: %w", branch, err)
	}
	return true, nil
}

// RemoteBranchExists checks whether a branch exists on the remote.
func (s *Service) RemoteBranchExists(repoPath, remote, branch string) (bool, error) {
	out, err := s.run(repoPath, "ls-remote", "--heads", remote, "refs/heads/"+branch)
	if err != nil {
		return false, fmt.Errorf("ls-remote %s: %w", remote, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CreateBranchFrom creates a new branch pointing at baseBranch without
// checking it out.
func (s *Service) CreateBranchFrom(repoPath, branch, baseBranch string) error {
	if _, err := s.run(repoPath, "branch", branch, baseBranch); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "create branch " + branch, Err: err}
	}
	return nil
}

// RenameBranch renames a local branch. The branch may be checked out in a
// worktree; git updates the worktree's HEAD reference as part of the move.
func (s *Service) RenameBranch(repoPath, oldName, newName string) error {
	if _, err := s.run(repoPath, "branch", "-m", oldName, newName); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "rename branch " + oldName, Err: err}
	}
	return nil
}

// DeleteBranch deletes a local branch. If force is true, uses -D.
func (s *Service) DeleteBranch(repoPath, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := s.run(repoPath, "branch", flag, branch); err != nil {
		return &GitError{Op: "delete branch " + branch, Err: err}
	}
	return nil
}

// Fetch fetches updates from the remote.
func (s *Service) Fetch(repoPath, remote string) error {
	if _, err := s.run(repoPath, "fetch", remote); err != nil {
		return &GitError{Op: "fetch " + remote, Err: err}
	}
	return nil
}

// HasRemote checks whether a remote is configured.
func (s *Service) HasRemote(repoPath, remote string) bool {
	_, err := s.run(repoPath, "remote", "get-url", remote)
	return err == nil
}

// RemoteURL returns the URL of the named remote.
func (s *Service) RemoteURL(repoPath, remote string) (string, error) {
	url, err := s.run(repoPath, "remote", "get-url", remote)
	if err != nil {
		return "", &GitError{Op: "get remote URL", Err: err}
	}
	return url, nil
}

// ResetHard resets the worktree to the given commit, discarding local
// changes. Used when rewinding an attempt to a recorded process state.
func (s *Service) ResetHard(worktreePath, commit string) error {
	if _, err := s.run(worktreePath, "reset", "--hard", commit); err != nil {
		return &GitError{Op: "reset to " + commit, Err: err}
	}
	return nil
}
