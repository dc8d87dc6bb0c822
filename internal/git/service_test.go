package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	runGit(t, tmpDir, "init", "-b", "main")
	runGit(t, tmpDir, "config", "user.email", "test@test.com")
	runGit(t, tmpDir, "config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Test\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	runGit(t, tmpDir, "add", ".")
	runGit(t, tmpDir, "commit", "-m", "Initial commit")

	return tmpDir
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-m", message)
}

func TestEnsureRepo(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	if err := s.EnsureRepo(repo); err != nil {
		t.Fatalf("EnsureRepo() = %v, want nil", err)
	}
	if err := s.EnsureRepo(t.TempDir()); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("EnsureRepo(non-repo) = %v, want ErrNotGitRepo", err)
	}
}

func TestBranchExists(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	exists, err := s.BranchExists(repo, "main")
	if err != nil || !exists {
		t.Errorf("BranchExists(main) = %v, %v, want true, nil", exists, err)
	}
	exists, err = s.BranchExists(repo, "no-such-branch")
	if err != nil || exists {
		t.Errorf("BranchExists(no-such-branch) = %v, %v, want false, nil", exists, err)
	}
}

func TestCreateAndRenameBranch(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	if err := s.CreateBranchFrom(repo, "gr/feature-x-abc12345", "main"); err != nil {
		t.Fatalf("CreateBranchFrom() = %v", err)
	}
	if err := s.CreateBranchFrom(repo, "gr/feature-x-abc12345", "main"); !errors.Is(err, ErrBranchExists) {
		t.Errorf("CreateBranchFrom(existing) = %v, want ErrBranchExists", err)
	}

	if err := s.RenameBranch(repo, "gr/feature-x-abc12345", "gr/feature-y-abc12345"); err != nil {
		t.Fatalf("RenameBranch() = %v", err)
	}
	exists, _ := s.BranchExists(repo, "gr/feature-y-abc12345")
	if !exists {
		t.Error("renamed branch missing")
	}
	exists, _ = s.BranchExists(repo, "gr/feature-x-abc12345")
	if exists {
		t.Error("old branch still present after rename")
	}

	// Renaming onto a taken name must fail.
	if err := s.CreateBranchFrom(repo, "gr/taken", "main"); err != nil {
		t.Fatalf("CreateBranchFrom() = %v", err)
	}
	if err := s.RenameBranch(repo, "gr/feature-y-abc12345", "gr/taken"); !errors.Is(err, ErrBranchExists) {
		t.Errorf("RenameBranch(onto existing) = %v, want ErrBranchExists", err)
	}
}

func TestResolveBranchType(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	typ, err := s.ResolveBranchType(repo, "main")
	if err != nil || typ != BranchTypeLocal {
		t.Errorf("ResolveBranchType(main) = %v, %v, want local", typ, err)
	}
	typ, err = s.ResolveBranchType(repo, "missing")
	if err != nil || typ != BranchTypeNone {
		t.Errorf("ResolveBranchType(missing) = %v, %v, want none", typ, err)
	}

	// Simulate a remote-tracking ref without a local branch.
	head, err := s.HeadCommit(repo, "")
	if err != nil {
		t.Fatalf("HeadCommit() = %v", err)
	}
	runGit(t, repo, "update-ref", "refs/remotes/origin/develop", head)
	typ, err = s.ResolveBranchType(repo, "develop")
	if err != nil || typ != BranchTypeRemote {
		t.Errorf("ResolveBranchType(develop) = %v, %v, want remote", typ, err)
	}
}

func TestEnsureWorktree(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := filepath.Join(t.TempDir(), "attempt1", "repo")

	if err := s.EnsureWorktree(repo, wtPath, "gr/fix-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}
	branch, err := s.CurrentBranch(wtPath)
	if err != nil || branch != "gr/fix-abc12345" {
		t.Errorf("CurrentBranch(worktree) = %q, %v, want gr/fix-abc12345", branch, err)
	}

	// Second call is a no-op.
	if err := s.EnsureWorktree(repo, wtPath, "gr/fix-abc12345", "main"); err != nil {
		t.Errorf("EnsureWorktree(again) = %v, want nil", err)
	}
}

func TestEnsureWorktreeRecoversStaleRegistration(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := filepath.Join(t.TempDir(), "attempt2", "repo")

	if err := s.EnsureWorktree(repo, wtPath, "gr/stale-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}
	// Delete the directory out from under git, leaving a stale registration.
	if err := os.RemoveAll(wtPath); err != nil {
		t.Fatalf("remove worktree dir: %v", err)
	}
	if err := s.EnsureWorktree(repo, wtPath, "gr/stale-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree(after stale) = %v", err)
	}
	if _, err := os.Stat(wtPath); err != nil {
		t.Errorf("worktree dir not recreated: %v", err)
	}
}

func TestRemoveWorktree(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := filepath.Join(t.TempDir(), "attempt3", "repo")

	if err := s.EnsureWorktree(repo, wtPath, "gr/rm-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}
	// Dirty the worktree so plain remove would refuse.
	if err := os.WriteFile(filepath.Join(wtPath, "scratch.txt"), []byte("wip"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := s.RemoveWorktree(repo, wtPath); err != nil {
		t.Fatalf("RemoveWorktree() = %v", err)
	}
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Error("worktree dir still exists after removal")
	}

	if err := s.RemoveWorktree(repo, ""); err != nil {
		t.Errorf("RemoveWorktree(empty path) = %v, want nil", err)
	}
}

func TestListWorktrees(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := filepath.Join(t.TempDir(), "attempt4", "repo")

	if err := s.EnsureWorktree(repo, wtPath, "gr/list-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}
	worktrees, err := s.ListWorktrees(repo)
	if err != nil {
		t.Fatalf("ListWorktrees() = %v", err)
	}
	// Main checkout plus the attempt worktree.
	if len(worktrees) != 2 {
		t.Fatalf("ListWorktrees() returned %d entries, want 2", len(worktrees))
	}
	found := false
	for _, wt := range worktrees {
		if wt.Branch == "gr/list-abc12345" {
			found = true
			if wt.Commit == "" {
				t.Error("worktree entry missing commit")
			}
		}
	}
	if !found {
		t.Error("attempt worktree not listed")
	}
}
