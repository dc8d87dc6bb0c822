package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/executor"
)

// installFakeAgent puts a claude stand-in on PATH that prints the
// stream-json init line and exits 0.
func installFakeAgent(t *testing.T) {
	t.Helper()
	binDir := t.TempDir()
	script := "#!/bin/sh\necho '{\"type\":\"system\",\"subtype\":\"init\",\"session_id\":\"sess-42\"}'\n"
	if err := os.WriteFile(filepath.Join(binDir, "claude"), []byte(script), 0o755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func decodeAction(t *testing.T, p *db.ExecutionProcess) *executor.Action {
	t.Helper()
	action, err := executor.UnmarshalAction(p.ExecutorAction)
	if err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	return action
}

func TestFollowUpEmptyPrompt(t *testing.T) {
	env := newTestEnv(t, 1)
	attempt := env.seedAttempt(t)

	_, err := env.orch.FollowUp(context.Background(), attempt.ID, FollowUpRequest{})
	if err == nil {
		t.Fatal("FollowUp(empty prompt) = nil error")
	}
}

func TestFollowUpSessionContinuation(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	installFakeAgent(t)

	// No recorded session yet, so the first follow-up starts fresh.
	first, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "start here"})
	if err != nil {
		t.Fatalf("first FollowUp() = %v", err)
	}
	action := decodeAction(t, first)
	if action.Type != executor.ActionCodingAgentInitial {
		t.Fatalf("first action type = %s, want %s", action.Type, executor.ActionCodingAgentInitial)
	}
	if action.Initial.Prompt != "start here" {
		t.Errorf("prompt = %q", action.Initial.Prompt)
	}
	waitForStatus(t, env.store, first.ID, db.ProcessCompleted)

	// The fake agent reported sess-42, so the next follow-up continues it.
	second, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "keep going"})
	if err != nil {
		t.Fatalf("second FollowUp() = %v", err)
	}
	action = decodeAction(t, second)
	if action.Type != executor.ActionCodingAgentFollowUp {
		t.Fatalf("second action type = %s, want %s", action.Type, executor.ActionCodingAgentFollowUp)
	}
	if action.FollowUp.SessionID != "sess-42" {
		t.Errorf("session id = %q, want sess-42", action.FollowUp.SessionID)
	}
	waitForStatus(t, env.store, second.ID, db.ProcessCompleted)
}

func TestFollowUpPinsExecutorToAttempt(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	installFakeAgent(t)

	p, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "go", Variant: "plan"})
	if err != nil {
		t.Fatalf("FollowUp() = %v", err)
	}
	action := decodeAction(t, p)
	profile := action.ProfileOf()
	if profile == nil || profile.Executor != attempt.Executor {
		t.Fatalf("profile = %+v, want executor %s", profile, attempt.Executor)
	}
	if profile.Variant != "plan" {
		t.Errorf("variant = %q, want plan", profile.Variant)
	}
	waitForStatus(t, env.store, p.ID, db.ProcessCompleted)
}

func TestFollowUpRetryRewindsAndDrops(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	installFakeAgent(t)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	head0 := strings.TrimSpace(runGit(t, wt, "rev-parse", "HEAD"))

	p1, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "first try"})
	if err != nil {
		t.Fatalf("first FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, p1.ID, db.ProcessCompleted)

	// Pretend the agent committed work, then ran once more on top of it.
	commitFile(t, wt, "agent.txt", "draft\n", "Agent work")
	p2, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "second try"})
	if err != nil {
		t.Fatalf("second FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, p2.ID, db.ProcessCompleted)

	retry, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{
		Prompt:         "start over",
		RetryProcessID: p1.ID,
	})
	if err != nil {
		t.Fatalf("retry FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, retry.ID, db.ProcessCompleted)

	head := strings.TrimSpace(runGit(t, wt, "rev-parse", "HEAD"))
	if head != head0 {
		t.Errorf("worktree head = %s, want pre-retry state %s", head, head0)
	}
	for _, id := range []string{p1.ID, p2.ID} {
		p, err := env.store.GetProcess(id)
		if err != nil {
			t.Fatalf("get process: %v", err)
		}
		if p.DroppedAt == nil {
			t.Errorf("process %s not dropped after rewind", id)
		}
	}
	if got, _ := env.store.GetProcess(retry.ID); got.DroppedAt != nil {
		t.Error("replacement process was dropped")
	}
}

func TestFollowUpRetryStopsRunningProcess(t *testing.T) {
	env := newTestEnv(t, 1)
	env.project.SetupScript = "sleep 30"
	if err := env.store.SaveProject(env.project); err != nil {
		t.Fatalf("save project: %v", err)
	}
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	installFakeAgent(t)

	wt := env.container.WorktreePath(attempt.ID, "alpha")
	head0 := strings.TrimSpace(runGit(t, wt, "rev-parse", "HEAD"))

	p1, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "first try"})
	if err != nil {
		t.Fatalf("first FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, p1.ID, db.ProcessCompleted)
	commitFile(t, wt, "agent.txt", "draft\n", "Agent work")

	// Occupy the attempt with a long-running setup script. A retry must
	// stop it and rewind rather than bounce off the busy check.
	sleeper, err := env.orch.RunSetupScript(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("run setup script: %v", err)
	}

	retry, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{
		Prompt:         "start over",
		RetryProcessID: p1.ID,
	})
	if err != nil {
		t.Fatalf("retry FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, sleeper.ID, db.ProcessKilled)
	waitForStatus(t, env.store, retry.ID, db.ProcessCompleted)

	head := strings.TrimSpace(runGit(t, wt, "rev-parse", "HEAD"))
	if head != head0 {
		t.Errorf("worktree head = %s, want pre-retry state %s", head, head0)
	}
	if p, _ := env.store.GetProcess(p1.ID); p.DroppedAt == nil {
		t.Error("retried process not dropped after rewind")
	}
}

func TestFollowUpRetryForeignProcessRejected(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)

	other := &db.Attempt{TaskID: env.task.ID, Executor: "claude", Branch: "gr/other-11112222"}
	if err := env.store.CreateAttemptWithRepos(ctx, other, []db.RepoTarget{{RepoID: env.repos[0].ID, TargetBranch: "main"}}); err != nil {
		t.Fatalf("create other attempt: %v", err)
	}
	foreign := &db.ExecutionProcess{AttemptID: other.ID, RunReason: db.RunCodingAgent, Status: db.ProcessCompleted}
	if err := env.store.CreateProcess(foreign); err != nil {
		t.Fatalf("create foreign process: %v", err)
	}

	_, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "go", RetryProcessID: foreign.ID})
	if err == nil {
		t.Fatal("FollowUp(foreign retry) = nil error")
	}
}

func TestQueuedFollowUpDraftLifecycle(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	attempt := env.seedAttempt(t)
	env.ensureWorktrees(t, attempt)
	installFakeAgent(t)

	if err := env.orch.QueueFollowUp(attempt.ID, `{"prompt":"queued work"}`); err != nil {
		t.Fatalf("QueueFollowUp() = %v", err)
	}
	draft, err := env.orch.QueuedFollowUp(attempt.ID)
	if err != nil {
		t.Fatalf("QueuedFollowUp() = %v", err)
	}
	if draft == nil || draft.Payload != `{"prompt":"queued work"}` {
		t.Fatalf("draft = %+v", draft)
	}

	// Dispatching a follow-up consumes the stored draft.
	p, err := env.orch.FollowUp(ctx, attempt.ID, FollowUpRequest{Prompt: "queued work"})
	if err != nil {
		t.Fatalf("FollowUp() = %v", err)
	}
	waitForStatus(t, env.store, p.ID, db.ProcessCompleted)

	draft, err = env.orch.QueuedFollowUp(attempt.ID)
	if err != nil {
		t.Fatalf("QueuedFollowUp() after dispatch = %v", err)
	}
	if draft != nil {
		t.Errorf("draft survived dispatch: %+v", draft)
	}
}
