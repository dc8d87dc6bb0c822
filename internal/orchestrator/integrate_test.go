package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/git"
)

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", message)
}

func TestMergeAdvancesTargetAndTask(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "fix.go", "package fix\n", "Apply fix")

	dev, err := env.orch.StartDevServer(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("start dev server: %v", err)
	}

	merge, err := env.orch.Merge(ctx, attempt.ID, env.repos[0].ID)
	if err != nil {
		t.Fatalf("Merge() = %v", err)
	}
	if merge.MergeCommit == "" {
		t.Error("merge commit not recorded")
	}

	subject := strings.TrimSpace(runGit(t, env.repos[0].Path, "log", "-1", "--format=%s", "main"))
	want := "Fix login flow (" + git.ShortID(attempt.ID) + ")"
	if subject != want {
		t.Errorf("merge subject = %q, want %q", subject, want)
	}

	task, err := env.store.GetTask(env.task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != db.TaskDone {
		t.Errorf("task status = %s, want %s", task.Status, db.TaskDone)
	}

	// Merging shuts the attempt's dev server down.
	waitForStatus(t, env.store, dev.ID, db.ProcessKilled)
}

func TestMergeConflictsClassified(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "shared.txt", "attempt side\n", "Attempt change")
	commitFile(t, env.repos[0].Path, "shared.txt", "main side\n", "Main change")

	_, err := env.orch.Merge(ctx, attempt.ID, env.repos[0].ID)
	be := isBusinessError(t, err, "merge_conflicts")
	if be.Op != "merge" {
		t.Errorf("conflict op = %q, want merge", be.Op)
	}

	// Target branch is untouched by the failed merge.
	subject := strings.TrimSpace(runGit(t, env.repos[0].Path, "log", "-1", "--format=%s", "main"))
	if subject != "Main change" {
		t.Errorf("main moved to %q after conflicted merge", subject)
	}
}

func TestPushForceClassification(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	bare := t.TempDir()
	runGit(t, bare, "init", "--bare")
	runGit(t, env.repos[0].Path, "remote", "add", "origin", bare)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "a.txt", "one\n", "First")
	if err := env.orch.Push(ctx, attempt.ID, env.repos[0].ID, false); err != nil {
		t.Fatalf("initial push: %v", err)
	}

	runGit(t, wt, "commit", "--amend", "-m", "First, rewritten")
	err := env.orch.Push(ctx, attempt.ID, env.repos[0].ID, false)
	isBusinessError(t, err, "force_push_required")

	if err := env.orch.Push(ctx, attempt.ID, env.repos[0].ID, true); err != nil {
		t.Fatalf("force push: %v", err)
	}
	remoteHead := strings.TrimSpace(runGit(t, bare, "rev-parse", attempt.Branch))
	localHead := strings.TrimSpace(runGit(t, wt, "rev-parse", "HEAD"))
	if remoteHead != localHead {
		t.Errorf("remote head = %s, want %s", remoteHead, localHead)
	}
}

func TestRebaseOntoAdvancedTarget(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "feature.txt", "feature\n", "Feature work")
	commitFile(t, env.repos[0].Path, "base.txt", "base\n", "Base moved")
	mainHead := strings.TrimSpace(runGit(t, env.repos[0].Path, "rev-parse", "main"))

	if err := env.orch.Rebase(ctx, attempt.ID, RebaseRequest{RepoID: env.repos[0].ID}); err != nil {
		t.Fatalf("Rebase() = %v", err)
	}
	runGit(t, wt, "merge-base", "--is-ancestor", mainHead, "HEAD")
}

func TestRebaseConflictAndAbort(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "shared.txt", "attempt side\n", "Attempt change")
	commitFile(t, env.repos[0].Path, "shared.txt", "main side\n", "Main change")

	err := env.orch.Rebase(ctx, attempt.ID, RebaseRequest{RepoID: env.repos[0].ID})
	be := isBusinessError(t, err, "merge_conflicts")
	if be.Op != "rebase" {
		t.Errorf("conflict op = %q, want rebase", be.Op)
	}

	if err := env.orch.AbortConflicts(ctx, attempt.ID, env.repos[0].ID); err != nil {
		t.Fatalf("AbortConflicts() = %v", err)
	}
	statuses, err := env.orch.BranchStatus(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("BranchStatus() = %v", err)
	}
	if statuses[0].RebaseInProgress {
		t.Error("rebase still in progress after abort")
	}
	if len(statuses[0].ConflictedFiles) != 0 {
		t.Errorf("conflicted files = %v after abort", statuses[0].ConflictedFiles)
	}
}

func TestRebaseRetargetsBeforeRebasing(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	runGit(t, env.repos[0].Path, "branch", "develop", "main")

	err := env.orch.Rebase(ctx, attempt.ID, RebaseRequest{RepoID: env.repos[0].ID, NewBaseBranch: "develop"})
	if err != nil {
		t.Fatalf("Rebase(develop) = %v", err)
	}
	repos, err := env.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("find repos: %v", err)
	}
	if repos[0].TargetBranch != "develop" {
		t.Errorf("target branch = %q, want develop", repos[0].TargetBranch)
	}
}

func TestRebaseUnknownBaseLeavesTargetAlone(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	err := env.orch.Rebase(ctx, attempt.ID, RebaseRequest{RepoID: env.repos[0].ID, NewBaseBranch: "nope"})
	isBusinessError(t, err, "branch_does_not_exist")

	repos, err := env.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("find repos: %v", err)
	}
	if repos[0].TargetBranch != "main" {
		t.Errorf("target branch = %q, want main", repos[0].TargetBranch)
	}
}

func TestChangeTargetBranch(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)

	runGit(t, env.repos[0].Path, "branch", "release", "main")
	if err := env.orch.ChangeTargetBranch(ctx, attempt.ID, env.repos[0].ID, "release"); err != nil {
		t.Fatalf("ChangeTargetBranch() = %v", err)
	}
	repos, _ := env.store.FindReposForAttempt(attempt.ID)
	if repos[0].TargetBranch != "release" {
		t.Errorf("target branch = %q, want release", repos[0].TargetBranch)
	}

	err := env.orch.ChangeTargetBranch(ctx, attempt.ID, env.repos[0].ID, "missing")
	isBusinessError(t, err, "branch_does_not_exist")
}

func TestBranchStatusAheadBehind(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "one.txt", "1\n", "One")
	commitFile(t, wt, "two.txt", "2\n", "Two")
	commitFile(t, env.repos[0].Path, "base.txt", "b\n", "Base moved")
	if err := os.WriteFile(filepath.Join(wt, "dirty.txt"), []byte("wip\n"), 0o644); err != nil {
		t.Fatalf("write dirty file: %v", err)
	}

	statuses, err := env.orch.BranchStatus(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("BranchStatus() = %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	st := statuses[0]
	if st.RepoName != "alpha" || st.TargetBranch != "main" {
		t.Errorf("repo/target = %s/%s", st.RepoName, st.TargetBranch)
	}
	if st.Ahead != 2 || st.Behind != 1 {
		t.Errorf("ahead/behind = %d/%d, want 2/1", st.Ahead, st.Behind)
	}
	if st.Untracked != 1 {
		t.Errorf("untracked = %d, want 1", st.Untracked)
	}
	if st.RemoteAhead != nil || st.RemoteBehind != nil {
		t.Error("remote divergence set without an open PR")
	}
}

func TestBranchStatusRemotePrefixedTarget(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	// Target stored with the remote prefix already in it, pointing at a
	// remote-tracking ref with no local counterpart.
	head := strings.TrimSpace(runGit(t, env.repos[0].Path, "rev-parse", "main"))
	runGit(t, env.repos[0].Path, "update-ref", "refs/remotes/origin/main", head)
	if err := env.store.UpdateTargetBranch(attempt.ID, env.repos[0].ID, "origin/main"); err != nil {
		t.Fatalf("update target branch: %v", err)
	}

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	commitFile(t, wt, "one.txt", "1\n", "One")

	statuses, err := env.orch.BranchStatus(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("BranchStatus() = %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	st := statuses[0]
	if st.TargetBranch != "origin/main" {
		t.Errorf("target = %s, want origin/main", st.TargetBranch)
	}
	if st.Ahead != 1 || st.Behind != 0 {
		t.Errorf("ahead/behind = %d/%d, want 1/0", st.Ahead, st.Behind)
	}
}
