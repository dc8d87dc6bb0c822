package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/greenroomhq/greenroom/internal/db"
	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/executor"
	"github.com/greenroomhq/greenroom/internal/git"
)

// CreateAttemptRequest starts a new attempt for a task.
type CreateAttemptRequest struct {
	TaskID   string          `json:"task_id"`
	Executor string          `json:"executor"`
	Variant  string          `json:"variant,omitempty"`
	Repos    []db.RepoTarget `json:"repos"`
}

// CreateAttempt persists a new attempt with its repo links and kicks off the
// initial coding agent run. Creation succeeds once the rows are written; the
// worktree materialization and agent dispatch are fire-and-forget, so a
// failure there is logged and surfaced as an error event rather than failing
// the response.
func (o *Orchestrator) CreateAttempt(ctx context.Context, req CreateAttemptRequest) (*db.Attempt, error) {
	if len(req.Repos) == 0 {
		return nil, apperrors.ErrEmptyRepoList()
	}
	if _, err := executor.ResolveAgent(executor.Profile{Executor: req.Executor}); err != nil {
		return nil, apperrors.ErrValidation(err.Error())
	}

	task, err := o.store.GetTask(req.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperrors.ErrTaskNotFound(req.TaskID)
	}

	attempt := &db.Attempt{
		ID:       uuid.NewString(),
		TaskID:   task.ID,
		Executor: req.Executor,
		Variant:  req.Variant,
	}
	attempt.Branch = git.BranchNameForAttempt(task.Title, attempt.ID)

	if err := o.store.CreateAttemptWithRepos(ctx, attempt, req.Repos); err != nil {
		return nil, err
	}
	if task.Status == db.TaskTodo {
		if err := o.store.UpdateTaskStatus(task.ID, db.TaskInProgress); err != nil {
			o.logger.Warn("advance task status failed", "task", task.ID, "error", err)
		}
	}

	o.events.Publish(events.NewEvent(events.EventAttemptCreated, attempt.ID, map[string]string{
		"task_id": task.ID,
		"branch":  attempt.Branch,
	}))

	go o.dispatchInitial(attempt, task)

	return attempt, nil
}

// dispatchInitial runs off the request path: materialize worktrees and start
// the first agent run with the cleanup script chained behind it.
func (o *Orchestrator) dispatchInitial(attempt *db.Attempt, task *db.Task) {
	ctx := context.Background()
	mu := o.attemptLock(attempt.ID)
	mu.Lock()
	defer mu.Unlock()

	action := executor.NewInitialAction(promptForTask(task), executor.Profile{
		Executor: attempt.Executor,
		Variant:  attempt.Variant,
	})
	o.chainCleanup(attempt, action)

	if _, err := o.container.StartProcess(ctx, attempt, action); err != nil {
		o.logger.Error("initial dispatch failed", "attempt", attempt.ID, "error", err)
		o.events.Publish(events.NewEvent(events.EventError, attempt.ID, events.ErrorData{
			Op:      "initial_dispatch",
			Message: err.Error(),
		}))
	}
}

// chainCleanup appends the project's cleanup script to the tail of an action
// chain when one is configured.
func (o *Orchestrator) chainCleanup(attempt *db.Attempt, action *executor.Action) {
	project, err := o.store.GetProjectForAttempt(attempt.ID)
	if err != nil || project == nil || project.CleanupScript == "" {
		if err != nil {
			o.logger.Warn("resolve cleanup script failed", "attempt", attempt.ID, "error", err)
		}
		return
	}
	tail := action
	for tail.NextAction != nil {
		tail = tail.NextAction
	}
	tail.NextAction = executor.NewScriptAction(project.CleanupScript, executor.ScriptContextCleanup)
}

func promptForTask(task *db.Task) string {
	if strings.TrimSpace(task.Description) == "" {
		return task.Title
	}
	return task.Title + "\n\n" + task.Description
}

// GetAttempt returns an attempt by id.
func (o *Orchestrator) GetAttempt(id string) (*db.Attempt, error) {
	attempt, err := o.store.GetAttempt(id)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, apperrors.ErrAttemptNotFound(id)
	}
	return attempt, nil
}

// ListAttempts returns a task's attempts, newest first.
func (o *Orchestrator) ListAttempts(taskID string) ([]db.Attempt, error) {
	return o.store.ListAttemptsForTask(taskID)
}

// Repos returns the repos linked to an attempt with their target branches.
func (o *Orchestrator) Repos(attemptID string) ([]db.AttemptRepoInfo, error) {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return nil, err
	}
	return o.store.FindReposForAttempt(attemptID)
}

// Children returns tasks chained off an attempt.
func (o *Orchestrator) Children(attemptID string) ([]db.Task, error) {
	if _, err := o.GetAttempt(attemptID); err != nil {
		return nil, err
	}
	return o.store.ListChildTasks(attemptID)
}

// CleanupAttempt tears down an attempt's worktrees. Invoked on task deletion.
func (o *Orchestrator) CleanupAttempt(ctx context.Context, attemptID string) error {
	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return err
	}
	if err := o.container.TryStop(ctx, attemptID, false); err != nil {
		o.logger.Warn("stop processes before cleanup failed", "attempt", attemptID, "error", err)
	}
	return o.container.Cleanup(ctx, attempt)
}
