package orchestrator

import (
	"context"
	"os"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
)

// repoDir returns the attempt worktree for a repo when it exists, falling
// back to the main checkout for attempts whose worktrees were never
// materialized. Branch operations work in either.
func (o *Orchestrator) repoDir(attemptID string, info *db.AttemptRepoInfo) string {
	wtPath := o.container.WorktreePath(attemptID, info.Repo.Name)
	if _, err := os.Stat(wtPath); err == nil {
		return wtPath
	}
	return info.Repo.Path
}

// RenameResult reports a completed branch rename across all of an attempt's
// repos.
type RenameResult struct {
	OldBranch       string `json:"old_branch"`
	NewBranch       string `json:"new_branch"`
	ReposRenamed    int    `json:"repos_renamed"`
	ChildrenUpdated int64  `json:"children_updated"`
}

// RenameBranch renames the attempt branch in every linked repo. All
// preconditions are checked before any repo is touched: the name must be
// valid, no open PR may exist for the attempt, and no repo may already have
// the branch or be mid-rebase. A failure partway rolls the already renamed
// repos back to the old name in reverse order. On success the new name is
// persisted and child attempts targeting the old branch are retargeted.
func (o *Orchestrator) RenameBranch(ctx context.Context, attemptID, newBranch string) (*RenameResult, error) {
	mu := o.attemptLock(attemptID)
	mu.Lock()
	defer mu.Unlock()

	if newBranch == "" {
		return nil, errEmptyBranchName()
	}
	if err := git.ValidateBranchName(newBranch); err != nil {
		return nil, errInvalidBranchNameFormat(err.Error())
	}

	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Branch == newBranch {
		return &RenameResult{OldBranch: attempt.Branch, NewBranch: newBranch}, nil
	}

	openPR, err := o.store.HasOpenPR(attemptID)
	if err != nil {
		return nil, err
	}
	if openPR {
		return nil, errOpenPullRequest()
	}

	repos, err := o.store.FindReposForAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	for _, info := range repos {
		exists, err := o.git.BranchExists(info.Repo.Path, newBranch)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errBranchAlreadyExists(info.Repo.Name)
		}
		rebasing, err := o.git.RebaseInProgress(o.repoDir(attemptID, &info))
		if err != nil {
			return nil, err
		}
		if rebasing {
			return nil, errRebaseInProgress(info.Repo.Name)
		}
	}

	oldBranch := attempt.Branch
	var renamed []db.AttemptRepoInfo
	for _, info := range repos {
		if err := o.git.RenameBranch(o.repoDir(attemptID, &info), oldBranch, newBranch); err != nil {
			o.rollbackRename(attemptID, renamed, oldBranch, newBranch)
			return nil, errRenameFailed(info.Repo.Name, err.Error())
		}
		renamed = append(renamed, info)
	}

	if err := o.store.UpdateAttemptBranch(attemptID, newBranch); err != nil {
		o.rollbackRename(attemptID, renamed, oldBranch, newBranch)
		return nil, err
	}
	children, err := o.store.UpdateTargetBranchForChildren(attemptID, oldBranch, newBranch)
	if err != nil {
		o.logger.Warn("retarget children failed", "attempt", attemptID, "error", err)
	}

	result := &RenameResult{
		OldBranch:       oldBranch,
		NewBranch:       newBranch,
		ReposRenamed:    len(renamed),
		ChildrenUpdated: children,
	}
	o.events.Publish(events.NewEvent(events.EventBranchRenamed, attemptID, events.RenameData{
		OldBranch:       oldBranch,
		NewBranch:       newBranch,
		ChildrenUpdated: children,
		ReposRenamed:    len(renamed),
	}))
	return result, nil
}

// rollbackRename undoes successful renames in reverse order. Best-effort:
// a failing inverse is logged, never surfaced.
func (o *Orchestrator) rollbackRename(attemptID string, renamed []db.AttemptRepoInfo, oldBranch, newBranch string) {
	for i := len(renamed) - 1; i >= 0; i-- {
		if err := o.git.RenameBranch(o.repoDir(attemptID, &renamed[i]), newBranch, oldBranch); err != nil {
			o.logger.Error("rename rollback failed",
				"attempt", attemptID, "repo", renamed[i].Repo.Name, "error", err)
		}
	}
}
