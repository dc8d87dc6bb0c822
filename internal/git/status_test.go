package git

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAheadBehind(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := filepath.Join(t.TempDir(), "wt")

	if err := s.EnsureWorktree(repo, wtPath, "gr/counts-abc12345", "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}

	// Two commits on the attempt branch, one on main.
	commitFile(t, wtPath, "a.txt", "one", "add a")
	commitFile(t, wtPath, "b.txt", "two", "add b")
	commitFile(t, repo, "c.txt", "three", "add c")

	ahead, behind, err := s.AheadBehind(wtPath, "gr/counts-abc12345", "main")
	if err != nil {
		t.Fatalf("AheadBehind() = %v", err)
	}
	if ahead != 2 || behind != 1 {
		t.Errorf("AheadBehind() = %d ahead, %d behind, want 2, 1", ahead, behind)
	}
}

func TestWorktreeCounts(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	uncommitted, untracked, err := s.WorktreeCounts(repo)
	if err != nil {
		t.Fatalf("WorktreeCounts() = %v", err)
	}
	if uncommitted != 0 || untracked != 0 {
		t.Errorf("clean repo counts = %d, %d, want 0, 0", uncommitted, untracked)
	}

	// One tracked modification, two untracked files.
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, name := range []string{"new1.txt", "new2.txt"} {
		if err := os.WriteFile(filepath.Join(repo, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	uncommitted, untracked, err = s.WorktreeCounts(repo)
	if err != nil {
		t.Fatalf("WorktreeCounts() = %v", err)
	}
	if uncommitted != 1 || untracked != 2 {
		t.Errorf("dirty repo counts = %d, %d, want 1, 2", uncommitted, untracked)
	}

	clean, err := s.IsClean(repo)
	if err != nil || clean {
		t.Errorf("IsClean(dirty) = %v, %v, want false, nil", clean, err)
	}
}

// setupConflictingBranches gives the attempt branch and main divergent edits
// to the same file. Returns the worktree path for the attempt branch.
func setupConflictingBranches(t *testing.T, s *Service, repo, branch string) string {
	t.Helper()
	wtPath := filepath.Join(t.TempDir(), "wt")
	if err := s.EnsureWorktree(repo, wtPath, branch, "main"); err != nil {
		t.Fatalf("EnsureWorktree() = %v", err)
	}
	commitFile(t, wtPath, "shared.txt", "attempt version\n", "attempt edit")
	commitFile(t, repo, "shared.txt", "main version\n", "main edit")
	return wtPath
}

func TestConflictedFilesDuringRebase(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)
	wtPath := setupConflictingBranches(t, s, repo, "gr/conflict-abc12345")

	err := s.Rebase(wtPath, "gr/conflict-abc12345", "", "main")
	if err == nil {
		t.Fatal("Rebase() = nil, want conflict")
	}

	inProgress, err := s.RebaseInProgress(wtPath)
	if err != nil || !inProgress {
		t.Fatalf("RebaseInProgress() = %v, %v, want true", inProgress, err)
	}

	files, op, err := s.ConflictedFiles(wtPath)
	if err != nil {
		t.Fatalf("ConflictedFiles() = %v", err)
	}
	if len(files) != 1 || files[0] != "shared.txt" {
		t.Errorf("ConflictedFiles() = %v, want [shared.txt]", files)
	}
	if op != ConflictOpRebase {
		t.Errorf("conflict op = %q, want rebase", op)
	}
}

func TestConflictedFilesClean(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	files, op, err := s.ConflictedFiles(repo)
	if err != nil {
		t.Fatalf("ConflictedFiles() = %v", err)
	}
	if files != nil || op != "" {
		t.Errorf("ConflictedFiles(clean) = %v, %q, want nil, empty", files, op)
	}
}

func TestRebaseInProgressClean(t *testing.T) {
	s := NewService()
	repo := setupTestRepo(t)

	inProgress, err := s.RebaseInProgress(repo)
	if err != nil || inProgress {
		t.Errorf("RebaseInProgress(clean) = %v, %v, want false, nil", inProgress, err)
	}
}
