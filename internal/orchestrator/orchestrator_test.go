package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/diff"
	"github.com/greenroomhq/greenroom/internal/git"
	"github.com/greenroomhq/greenroom/internal/workspace"
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

type testEnv struct {
	store     *db.Store
	container *workspace.Container
	orch      *Orchestrator
	project   *db.Project
	task      *db.Task
	repos     []*db.Repo
}

// newTestEnv seeds a project with n git repos and one task.
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()
	store := db.NewTestStore(t)
	gitSvc := git.NewService()

	project := &db.Project{Name: "demo", SetupScript: "true", DevScript: "sleep 30"}
	if err := store.SaveProject(project); err != nil {
		t.Fatalf("save project: %v", err)
	}

	names := []string{"alpha", "beta", "gamma"}
	var repos []*db.Repo
	for i := 0; i < n; i++ {
		repo := &db.Repo{Name: names[i], DisplayName: names[i], Path: setupTestRepo(t)}
		if err := store.SaveRepo(repo); err != nil {
			t.Fatalf("save repo: %v", err)
		}
		if err := store.LinkRepoToProject(project.ID, repo.ID, ""); err != nil {
			t.Fatalf("link repo: %v", err)
		}
		repos = append(repos, repo)
	}

	task := &db.Task{ProjectID: project.ID, Title: "Fix login flow", Description: "Users get logged out.", Status: db.TaskTodo}
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("save task: %v", err)
	}

	container := workspace.NewContainer(t.TempDir(), store, gitSvc, diff.NewService(diff.NewCache(64)), nil, nil)
	orch := New(store, gitSvc, container, nil)
	return &testEnv{store: store, container: container, orch: orch, project: project, task: task, repos: repos}
}

// seedAttempt persists an attempt row targeting main in every repo, without
// the fire-and-forget dispatch of CreateAttempt.
func (e *testEnv) seedAttempt(t *testing.T) *db.Attempt {
	t.Helper()
	attempt := &db.Attempt{TaskID: e.task.ID, Executor: "claude"}
	attempt.Branch = git.BranchNameForAttempt(e.task.Title, "abc12345-0000-0000-0000-000000000000")
	var targets []db.RepoTarget
	for _, repo := range e.repos {
		targets = append(targets, db.RepoTarget{RepoID: repo.ID, TargetBranch: "main"})
	}
	if err := e.store.CreateAttemptWithRepos(context.Background(), attempt, targets); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return attempt
}

func (e *testEnv) ensureWorktrees(t *testing.T, attempt *db.Attempt) {
	t.Helper()
	if err := e.container.EnsureWorktrees(context.Background(), attempt); err != nil {
		t.Fatalf("ensure worktrees: %v", err)
	}
}

func waitForStatus(t *testing.T, store *db.Store, processID string, want db.ProcessStatus) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		p, err := store.GetProcess(processID)
		if err != nil {
			t.Fatalf("get process: %v", err)
		}
		if p != nil && p.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("process %s never reached status %s", processID, want)
}

func isBusinessError(t *testing.T, err error, wantType string) *BusinessError {
	t.Helper()
	be, ok := err.(*BusinessError)
	if !ok {
		t.Fatalf("error = %v (%T), want BusinessError %s", err, err, wantType)
	}
	if be.Type != wantType {
		t.Fatalf("business error type = %s, want %s", be.Type, wantType)
	}
	return be
}

func TestCreateAttemptEmptyRepoList(t *testing.T) {
	env := newTestEnv(t, 1)

	_, err := env.orch.CreateAttempt(context.Background(), CreateAttemptRequest{
		TaskID:   env.task.ID,
		Executor: "claude",
	})
	if err == nil {
		t.Fatal("CreateAttempt(no repos) = nil error")
	}

	attempts, err := env.store.ListAttemptsForTask(env.task.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempts persisted = %d, want 0", len(attempts))
	}
}

func TestCreateAttemptUnknownExecutor(t *testing.T) {
	env := newTestEnv(t, 1)

	_, err := env.orch.CreateAttempt(context.Background(), CreateAttemptRequest{
		TaskID:   env.task.ID,
		Executor: "totally-made-up",
		Repos:    []db.RepoTarget{{RepoID: env.repos[0].ID, TargetBranch: "main"}},
	})
	if err == nil {
		t.Fatal("CreateAttempt(unknown executor) = nil error")
	}
}

func TestCreateAttemptPersistsAndAdvancesTask(t *testing.T) {
	env := newTestEnv(t, 2)

	attempt, err := env.orch.CreateAttempt(context.Background(), CreateAttemptRequest{
		TaskID:   env.task.ID,
		Executor: "claude",
		Repos: []db.RepoTarget{
			{RepoID: env.repos[0].ID, TargetBranch: "main"},
			{RepoID: env.repos[1].ID, TargetBranch: "main"},
		},
	})
	if err != nil {
		t.Fatalf("CreateAttempt() = %v", err)
	}
	if attempt.Branch == "" {
		t.Error("attempt branch not generated")
	}
	if err := git.ValidateBranchName(attempt.Branch); err != nil {
		t.Errorf("generated branch %q invalid: %v", attempt.Branch, err)
	}

	repos, err := env.store.FindReposForAttempt(attempt.ID)
	if err != nil {
		t.Fatalf("find repos: %v", err)
	}
	if len(repos) != 2 {
		t.Errorf("linked repos = %d, want 2", len(repos))
	}

	task, err := env.store.GetTask(env.task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != db.TaskInProgress {
		t.Errorf("task status = %s, want %s", task.Status, db.TaskInProgress)
	}
}

func TestFollowUpMutualExclusion(t *testing.T) {
	env := newTestEnv(t, 1)
	env.project.SetupScript = "sleep 30"
	if err := env.store.SaveProject(env.project); err != nil {
		t.Fatalf("save project: %v", err)
	}
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	ctx := context.Background()

	// Occupy the attempt with a long-running setup script.
	running, err := env.orch.RunSetupScript(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("run setup script: %v", err)
	}
	t.Cleanup(func() { _ = env.container.StopProcess(ctx, running.ID) })

	before, _ := env.store.ListProcesses(attempt.ID)
	_, err = env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "continue"})
	isBusinessError(t, err, "process_already_running")
	after, _ := env.store.ListProcesses(attempt.ID)
	if len(after) != len(before) {
		t.Errorf("process rows grew from %d to %d on rejected dispatch", len(before), len(after))
	}
}

func TestRunSetupScriptNoScriptConfigured(t *testing.T) {
	env := newTestEnv(t, 1)
	env.project.SetupScript = ""
	if err := env.store.SaveProject(env.project); err != nil {
		t.Fatalf("save project: %v", err)
	}
	attempt := env.seedAttempt(t)

	_, err := env.orch.RunSetupScript(context.Background(), attempt.ID)
	isBusinessError(t, err, "no_script_configured")
}

func TestDevServerSingletonPerProject(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	first := env.seedAttempt(t)
	env.ensureWorktrees(t, first)

	second := &db.Attempt{TaskID: env.task.ID, Executor: "claude", Branch: "gr/other-attempt-deadbeef"}
	if err := env.store.CreateAttemptWithRepos(ctx, second, []db.RepoTarget{{RepoID: env.repos[0].ID, TargetBranch: "main"}}); err != nil {
		t.Fatalf("create second attempt: %v", err)
	}
	env.ensureWorktrees(t, second)

	devA, err := env.orch.StartDevServer(ctx, first.ID)
	if err != nil {
		t.Fatalf("start dev server A: %v", err)
	}
	devB, err := env.orch.StartDevServer(ctx, second.ID)
	if err != nil {
		t.Fatalf("start dev server B: %v", err)
	}
	t.Cleanup(func() { _ = env.container.StopProcess(ctx, devB.ID) })

	waitForStatus(t, env.store, devA.ID, db.ProcessKilled)
	servers, err := env.store.RunningDevServers(env.project.ID)
	if err != nil {
		t.Fatalf("running dev servers: %v", err)
	}
	if len(servers) != 1 || servers[0].ID != devB.ID {
		t.Errorf("running dev servers = %+v, want only the new one", servers)
	}
}

func TestStopSparesDevServers(t *testing.T) {
	env := newTestEnv(t, 1)
	env.project.SetupScript = "sleep 30"
	if err := env.store.SaveProject(env.project); err != nil {
		t.Fatalf("save project: %v", err)
	}
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	dev, err := env.orch.StartDevServer(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("start dev server: %v", err)
	}
	t.Cleanup(func() { _ = env.container.StopProcess(ctx, dev.ID) })
	setup, err := env.orch.RunSetupScript(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("run setup script: %v", err)
	}

	if err := env.orch.Stop(ctx, attempt.ID); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	waitForStatus(t, env.store, setup.ID, db.ProcessKilled)

	devRow, err := env.store.GetProcess(dev.ID)
	if err != nil {
		t.Fatalf("get dev server process: %v", err)
	}
	if devRow.Status != db.ProcessRunning {
		t.Errorf("dev server status = %s after Stop, want %s", devRow.Status, db.ProcessRunning)
	}
}
