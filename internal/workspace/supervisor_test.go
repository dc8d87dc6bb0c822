package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/executor"
	"github.com/greenroomhq/greenroom/internal/git"
)

func waitForStatus(t *testing.T, store *db.Store, processID string, want db.ProcessStatus) *db.ExecutionProcess {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		p, err := store.GetProcess(processID)
		if err != nil {
			t.Fatalf("get process: %v", err)
		}
		if p != nil && p.Status == want {
			return p
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("process %s never reached status %s", processID, want)
	return nil
}

func TestStartProcessRunsScriptToCompletion(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	action := executor.NewScriptAction("echo ok > marker.txt", executor.ScriptContextSetup)
	process, err := f.container.StartProcess(ctx, f.attempt, action)
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	if process.RunReason != db.RunSetupScript {
		t.Errorf("run reason = %s, want %s", process.RunReason, db.RunSetupScript)
	}

	if err := f.container.WaitForProcess(ctx, process.ID); err != nil {
		t.Fatalf("WaitForProcess() = %v", err)
	}
	settled := waitForStatus(t, f.store, process.ID, db.ProcessCompleted)
	if settled.ExitCode == nil || *settled.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", settled.ExitCode)
	}

	// The script ran inside the attempt worktree.
	wtPath := f.container.WorktreePath(f.attempt.ID, "app")
	if _, err := os.Stat(filepath.Join(wtPath, "marker.txt")); err != nil {
		t.Errorf("script did not run in worktree: %v", err)
	}

	states, err := f.store.GetProcessRepoStates(process.ID)
	if err != nil {
		t.Fatalf("get repo states: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("repo states = %d, want 1", len(states))
	}
	head := strings.TrimSpace(runGit(t, wtPath, "rev-parse", "HEAD"))
	if states[0].BeforeHeadCommit != head {
		t.Errorf("before head = %s, want %s", states[0].BeforeHeadCommit, head)
	}
}

func TestStartProcessFailedScript(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	process, err := f.container.StartProcess(ctx, f.attempt, executor.NewScriptAction("exit 3", executor.ScriptContextSetup))
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	settled := waitForStatus(t, f.store, process.ID, db.ProcessFailed)
	if settled.ExitCode == nil || *settled.ExitCode != 3 {
		t.Errorf("exit code = %v, want 3", settled.ExitCode)
	}
}

func TestStopProcessKillsRunningScript(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	process, err := f.container.StartProcess(ctx, f.attempt, executor.NewScriptAction("sleep 30", executor.ScriptContextDevServer))
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	if !f.container.IsRunning(process.ID) {
		t.Fatal("process not tracked as running")
	}

	if err := f.container.StopProcess(ctx, process.ID); err != nil {
		t.Fatalf("StopProcess() = %v", err)
	}
	waitForStatus(t, f.store, process.ID, db.ProcessKilled)
	if f.container.IsRunning(process.ID) {
		t.Error("process still tracked after stop")
	}
}

func TestTryStopExcludesDevServers(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	dev, err := f.container.StartProcess(ctx, f.attempt, executor.NewScriptAction("sleep 30", executor.ScriptContextDevServer))
	if err != nil {
		t.Fatalf("start dev server: %v", err)
	}
	agent, err := f.container.StartProcess(ctx, f.attempt, executor.NewScriptAction("sleep 30", executor.ScriptContextSetup))
	if err != nil {
		t.Fatalf("start setup script: %v", err)
	}

	if err := f.container.TryStop(ctx, f.attempt.ID, true); err != nil {
		t.Fatalf("TryStop() = %v", err)
	}
	waitForStatus(t, f.store, agent.ID, db.ProcessKilled)
	if !f.container.IsRunning(dev.ID) {
		t.Error("dev server was stopped despite exclusion")
	}

	if err := f.container.TryStop(ctx, f.attempt.ID, false); err != nil {
		t.Fatalf("TryStop(all) = %v", err)
	}
	waitForStatus(t, f.store, dev.ID, db.ProcessKilled)
}

func TestNextActionDispatchedAfterSuccess(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	action := executor.NewScriptAction("echo first", executor.ScriptContextSetup)
	action.NextAction = executor.NewScriptAction("echo second > second.txt", executor.ScriptContextCleanup)

	if _, err := f.container.StartProcess(ctx, f.attempt, action); err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		processes, err := f.store.ListProcesses(f.attempt.ID)
		if err != nil {
			t.Fatalf("list processes: %v", err)
		}
		if len(processes) == 2 {
			for _, p := range processes {
				if p.RunReason == db.RunCleanupScript {
					waitForStatus(t, f.store, p.ID, db.ProcessCompleted)
					return
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("chained action never dispatched")
}

func TestNextActionSkippedAfterFailure(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	action := executor.NewScriptAction("exit 1", executor.ScriptContextSetup)
	action.NextAction = executor.NewScriptAction("echo never", executor.ScriptContextCleanup)

	process, err := f.container.StartProcess(ctx, f.attempt, action)
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	waitForStatus(t, f.store, process.ID, db.ProcessFailed)

	processes, err := f.store.ListProcesses(f.attempt.ID)
	if err != nil {
		t.Fatalf("list processes: %v", err)
	}
	if len(processes) != 1 {
		t.Errorf("processes = %d, want 1 (no chain after failure)", len(processes))
	}
}

func TestSessionIDCapturedFromAgentOutput(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	// A fake agent binary that prints the claude stream-json init line.
	binDir := t.TempDir()
	script := "#!/bin/sh\necho '{\"type\":\"system\",\"subtype\":\"init\",\"session_id\":\"sess-42\"}'\n"
	fakePath := filepath.Join(binDir, "claude")
	if err := os.WriteFile(fakePath, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	action := executor.NewInitialAction("do the thing", executor.Profile{Executor: "claude"})
	process, err := f.container.StartProcess(ctx, f.attempt, action)
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	waitForStatus(t, f.store, process.ID, db.ProcessCompleted)

	settled, err := f.store.GetProcess(process.ID)
	if err != nil {
		t.Fatalf("get process: %v", err)
	}
	if settled.SessionID != "sess-42" {
		t.Errorf("session id = %q, want sess-42", settled.SessionID)
	}
}

func TestRestoreToProcess(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	process, err := f.container.StartProcess(ctx, f.attempt, executor.NewScriptAction("true", executor.ScriptContextSetup))
	if err != nil {
		t.Fatalf("StartProcess() = %v", err)
	}
	waitForStatus(t, f.store, process.ID, db.ProcessCompleted)

	wtPath := f.container.WorktreePath(f.attempt.ID, "app")
	before := strings.TrimSpace(runGit(t, wtPath, "rev-parse", "HEAD"))

	// Simulate agent work: a commit plus a dirty file.
	if err := os.WriteFile(filepath.Join(wtPath, "work.txt"), []byte("done\n"), 0o644); err != nil {
		t.Fatalf("write work file: %v", err)
	}
	runGit(t, wtPath, "add", "work.txt")
	runGit(t, wtPath, "commit", "-m", "Agent work")
	if err := os.WriteFile(filepath.Join(wtPath, "scratch.txt"), []byte("wip\n"), 0o644); err != nil {
		t.Fatalf("write dirty file: %v", err)
	}
	runGit(t, wtPath, "add", "scratch.txt")

	err = f.container.RestoreToProcess(ctx, f.attempt, process.ID, false)
	if !errors.Is(err, git.ErrWorktreeDirty) {
		t.Fatalf("RestoreToProcess(dirty) = %v, want ErrWorktreeDirty", err)
	}

	if err := f.container.RestoreToProcess(ctx, f.attempt, process.ID, true); err != nil {
		t.Fatalf("RestoreToProcess(force) = %v", err)
	}
	after := strings.TrimSpace(runGit(t, wtPath, "rev-parse", "HEAD"))
	if after != before {
		t.Errorf("HEAD after restore = %s, want %s", after, before)
	}
	if _, err := os.Stat(filepath.Join(wtPath, "work.txt")); !os.IsNotExist(err) {
		t.Error("committed file survived restore")
	}
}

func TestStopProcessSettlesStaleRow(t *testing.T) {
	f := newFixture(t, "")

	// A running row not owned by this instance, as after a server restart.
	now := time.Now()
	stale := &db.ExecutionProcess{
		AttemptID:      f.attempt.ID,
		RunReason:      db.RunCodingAgent,
		ExecutorAction: "{}",
		Status:         db.ProcessRunning,
		StartedAt:      &now,
	}
	if err := f.store.CreateProcess(stale); err != nil {
		t.Fatalf("create stale process: %v", err)
	}

	if err := f.container.StopProcess(context.Background(), stale.ID); err != nil {
		t.Fatalf("StopProcess(stale) = %v", err)
	}
	waitForStatus(t, f.store, stale.ID, db.ProcessKilled)
}
