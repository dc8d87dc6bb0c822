package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/greenroomhq/greenroom/internal/db"
	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
)

// attemptRepo resolves one repo of an attempt along with its worktree path.
func (o *Orchestrator) attemptRepo(attemptID, repoID string) (*db.Attempt, *db.AttemptRepoInfo, string, error) {
	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, nil, "", err
	}
	repos, err := o.store.FindReposForAttempt(attemptID)
	if err != nil {
		return nil, nil, "", err
	}
	for i := range repos {
		if repos[i].Repo.ID == repoID {
			wtPath := o.container.WorktreePath(attemptID, repos[i].Repo.Name)
			return attempt, &repos[i], wtPath, nil
		}
	}
	return nil, nil, "", apperrors.ErrRepoNotFound(repoID)
}

// Merge folds the attempt branch into the repo's target branch with a merge
// commit built from the task title and short attempt id. On success the
// merge is recorded, the task advances to done, and the attempt's dev
// servers are stopped.
func (o *Orchestrator) Merge(ctx context.Context, attemptID, repoID string) (*db.Merge, error) {
	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	attempt, info, _, err := o.attemptRepo(attemptID, repoID)
	if err != nil {
		return nil, err
	}
	task, err := o.store.GetTask(attempt.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperrors.ErrTaskNotFound(attempt.TaskID)
	}

	message := mergeCommitMessage(task, attempt)
	commit, err := o.git.MergeBranches(info.Repo.Path, attempt.Branch, info.TargetBranch, message)
	if err != nil {
		if errors.Is(err, git.ErrMergeConflicts) {
			return nil, errMergeConflicts(err.Error(), "merge")
		}
		return nil, err
	}

	merge, err := o.store.CreateDirectMerge(attemptID, repoID, commit, info.TargetBranch)
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdateTaskStatus(task.ID, db.TaskDone); err != nil {
		o.logger.Warn("advance task to done failed", "task", task.ID, "error", err)
	}
	o.stopDevServers(ctx, attemptID)

	o.events.Publish(events.NewEvent(events.EventMerged, attemptID, events.MergeData{
		RepoID:       repoID,
		TargetBranch: info.TargetBranch,
		MergeCommit:  commit,
	}))
	return merge, nil
}

// mergeCommitMessage is "{title} ({short-id})" with the description appended
// as the body when non-empty.
func mergeCommitMessage(task *db.Task, attempt *db.Attempt) string {
	subject := fmt.Sprintf("%s (%s)", task.Title, git.ShortID(attempt.ID))
	if strings.TrimSpace(task.Description) == "" {
		return subject
	}
	return subject + "\n\n" + task.Description
}

// stopDevServers kills the attempt's running dev servers. Best-effort: the
// merge already happened, so failures are logged only.
func (o *Orchestrator) stopDevServers(ctx context.Context, attemptID string) {
	processes, err := o.store.RunningProcesses(attemptID, false)
	if err != nil {
		o.logger.Warn("list dev servers failed", "attempt", attemptID, "error", err)
		return
	}
	for _, p := range processes {
		if p.RunReason != db.RunDevServer {
			continue
		}
		if err := o.container.StopProcess(ctx, p.ID); err != nil {
			o.logger.Warn("stop dev server failed", "process", p.ID, "error", err)
		}
	}
}

// Push pushes the attempt branch to the remote. A rejected non-force push
// surfaces as a force_push_required outcome so the client can retry.
func (o *Orchestrator) Push(ctx context.Context, attemptID, repoID string, force bool) error {
	attempt, info, wtPath, err := o.attemptRepo(attemptID, repoID)
	if err != nil {
		return err
	}
	if err := o.git.Push(wtPath, o.remote, attempt.Branch, force); err != nil {
		if errors.Is(err, git.ErrNonFastForward) {
			return errForcePushRequired()
		}
		return err
	}
	o.events.Publish(events.NewEvent(events.EventPushed, attemptID, map[string]string{
		"repo_id": info.Repo.ID,
		"branch":  attempt.Branch,
	}))
	return nil
}

// RebaseRequest retargets and rebases one repo of an attempt. Empty branches
// default to the repo's current target.
type RebaseRequest struct {
	RepoID        string `json:"repo_id"`
	OldBaseBranch string `json:"old_base_branch,omitempty"`
	NewBaseBranch string `json:"new_base_branch,omitempty"`
}

// Rebase moves the attempt branch onto a new base. When the new base
// differs from the current target it must exist locally or on the remote;
// it is then persisted as the repo's target before the rebase runs, so a
// conflicted rebase still leaves the retarget in place.
func (o *Orchestrator) Rebase(ctx context.Context, attemptID string, req RebaseRequest) error {
	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	attempt, info, wtPath, err := o.attemptRepo(attemptID, req.RepoID)
	if err != nil {
		return err
	}

	oldBase := req.OldBaseBranch
	if oldBase == "" {
		oldBase = info.TargetBranch
	}
	newBase := req.NewBaseBranch
	if newBase == "" {
		newBase = info.TargetBranch
	}

	if newBase != info.TargetBranch {
		branchType, err := o.git.ResolveBranchType(info.Repo.Path, newBase)
		if err != nil {
			return err
		}
		if branchType == git.BranchTypeNone {
			return errBranchDoesNotExist(newBase)
		}
		if err := o.store.UpdateTargetBranch(attemptID, req.RepoID, newBase); err != nil {
			return err
		}
	}

	if err := o.git.Rebase(wtPath, attempt.Branch, oldBase, newBase); err != nil {
		switch {
		case errors.Is(err, git.ErrRebaseInProgress):
			return errRebaseInProgress(info.Repo.Name)
		case errors.Is(err, git.ErrMergeConflicts):
			return errMergeConflicts(err.Error(), "rebase")
		}
		return err
	}

	o.events.Publish(events.NewEvent(events.EventRebased, attemptID, map[string]string{
		"repo_id":  req.RepoID,
		"new_base": newBase,
	}))
	return nil
}

// AbortConflicts aborts whatever merge or rebase is in progress in the
// repo's worktree. No-op when nothing is in progress.
func (o *Orchestrator) AbortConflicts(ctx context.Context, attemptID, repoID string) error {
	_, _, wtPath, err := o.attemptRepo(attemptID, repoID)
	if err != nil {
		return err
	}
	return o.git.AbortConflicts(wtPath)
}

// ChangeTargetBranch persists a new target branch for one repo of the
// attempt. The branch must exist locally or on the remote.
func (o *Orchestrator) ChangeTargetBranch(ctx context.Context, attemptID, repoID, newTarget string) error {
	if newTarget == "" {
		return apperrors.ErrValidation("target branch must not be empty")
	}
	_, info, _, err := o.attemptRepo(attemptID, repoID)
	if err != nil {
		return err
	}
	branchType, err := o.git.ResolveBranchType(info.Repo.Path, newTarget)
	if err != nil {
		return err
	}
	if branchType == git.BranchTypeNone {
		return errBranchDoesNotExist(newTarget)
	}
	return o.store.UpdateTargetBranch(attemptID, repoID, newTarget)
}
