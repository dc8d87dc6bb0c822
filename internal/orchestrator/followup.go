package orchestrator

import (
	"context"

	"github.com/greenroomhq/greenroom/internal/db"
	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/executor"
)

// FollowUpRequest drives another agent run on an existing attempt,
// optionally rewinding to the state before an earlier process first.
type FollowUpRequest struct {
	Prompt          string `json:"prompt"`
	Variant         string `json:"variant,omitempty"`
	RetryProcessID  string `json:"retry_process_id,omitempty"`
	ForceWhenDirty  bool   `json:"force_when_dirty,omitempty"`
	PerformGitReset *bool  `json:"perform_git_reset,omitempty"`
}

// FollowUp dispatches a follow-up prompt to an attempt. When the attempt has
// a recorded agent session the conversation continues with it; otherwise a
// fresh conversation starts. The whole check-rewind-dispatch sequence runs
// under the attempt's advisory lock.
func (o *Orchestrator) FollowUp(ctx context.Context, attemptID string, req FollowUpRequest) (*db.ExecutionProcess, error) {
	if req.Prompt == "" {
		return nil, apperrors.ErrValidation("prompt must not be empty")
	}

	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	// A retry stops whatever is running and rewinds past it; only plain
	// follow-ups are rejected while a process is active.
	if req.RetryProcessID == "" {
		running, err := o.store.RunningProcesses(attemptID, true)
		if err != nil {
			return nil, err
		}
		if len(running) > 0 {
			return nil, errProcessAlreadyRunning()
		}
	}

	if err := o.container.EnsureWorktrees(ctx, attempt); err != nil {
		return nil, err
	}

	if req.RetryProcessID != "" {
		if err := o.rewind(ctx, attempt, req); err != nil {
			return nil, err
		}
	}

	// The executor profile is pinned at attempt creation; follow-ups may
	// only override the variant.
	profile := executor.Profile{Executor: attempt.Executor, Variant: attempt.Variant}
	if req.Variant != "" {
		profile.Variant = req.Variant
	}

	sessionID, err := o.store.LatestSessionID(attemptID)
	if err != nil {
		return nil, err
	}

	var action *executor.Action
	if sessionID != "" {
		action = executor.NewFollowUpAction(req.Prompt, sessionID, profile)
	} else {
		action = executor.NewInitialAction(req.Prompt, profile)
	}
	o.chainCleanup(attempt, action)

	process, err := o.container.StartProcess(ctx, attempt, action)
	if err != nil {
		return nil, err
	}

	if err := o.store.DeleteScratch(attemptID, db.ScratchKindDraftFollowUp); err != nil {
		o.logger.Warn("clear draft follow-up failed", "attempt", attemptID, "error", err)
	}

	o.events.Publish(events.NewEvent(events.EventFollowUp, attemptID, map[string]string{
		"process_id": process.ID,
	}))
	return process, nil
}

// rewind restores worktrees to the state before the retried process and
// soft-drops it along with everything dispatched after it.
func (o *Orchestrator) rewind(ctx context.Context, attempt *db.Attempt, req FollowUpRequest) error {
	process, err := o.store.GetProcess(req.RetryProcessID)
	if err != nil {
		return err
	}
	if process == nil || process.AttemptID != attempt.ID {
		return apperrors.ErrValidation("retry process does not belong to this attempt")
	}

	// Running processes are stopped before the worktrees are reset so
	// nothing keeps writing into the restored state.
	if err := o.container.TryStop(ctx, attempt.ID, true); err != nil {
		return err
	}
	if req.PerformGitReset == nil || *req.PerformGitReset {
		if err := o.container.RestoreToProcess(ctx, attempt, process.ID, req.ForceWhenDirty); err != nil {
			return err
		}
	}
	return o.store.DropAtAndAfter(attempt.ID, process.ID)
}

// Processes lists an attempt's execution processes, dropped ones included.
func (o *Orchestrator) Processes(attemptID string) ([]db.ExecutionProcess, error) {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return nil, err
	}
	return o.store.ListProcesses(attemptID)
}

// QueueFollowUp stores a draft follow-up message for later dispatch.
func (o *Orchestrator) QueueFollowUp(attemptID, payload string) error {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return err
	}
	return o.store.UpsertScratch(attemptID, db.ScratchKindDraftFollowUp, payload)
}

// QueuedFollowUp returns the draft follow-up message, or nil when none is
// queued.
func (o *Orchestrator) QueuedFollowUp(attemptID string) (*db.Scratch, error) {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return nil, err
	}
	return o.store.GetScratch(attemptID, db.ScratchKindDraftFollowUp)
}

// DiscardQueuedFollowUp deletes the draft follow-up message.
func (o *Orchestrator) DiscardQueuedFollowUp(attemptID string) error {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return err
	}
	return o.store.DeleteScratch(attemptID, db.ScratchKindDraftFollowUp)
}
