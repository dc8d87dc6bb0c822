package orchestrator

import (
	"context"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/git"
)

// RepoBranchStatus is the derived per-repo snapshot of an attempt branch
// against its target. Computed on demand, never cached.
type RepoBranchStatus struct {
	RepoID           string   `json:"repo_id"`
	RepoName         string   `json:"repo_name"`
	TargetBranch     string   `json:"target_branch"`
	HeadCommit       string   `json:"head_commit"`
	Ahead            int      `json:"ahead"`
	Behind           int      `json:"behind"`
	RemoteAhead      *int     `json:"remote_ahead,omitempty"`
	RemoteBehind     *int     `json:"remote_behind,omitempty"`
	Uncommitted      int      `json:"uncommitted"`
	Untracked        int      `json:"untracked"`
	RebaseInProgress bool     `json:"rebase_in_progress"`
	ConflictedFiles  []string `json:"conflicted_files,omitempty"`
	ConflictOp       string   `json:"conflict_op,omitempty"`
	HasOpenPR        bool     `json:"has_open_pr"`
}

// BranchStatus aggregates the status of every repo linked to an attempt.
// Repos are independent, so the per-repo computations fan out concurrently;
// results keep the store's repo ordering.
func (o *Orchestrator) BranchStatus(ctx context.Context, attemptID string) ([]RepoBranchStatus, error) {
	attempt, err := o.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	repos, err := o.store.FindReposForAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	statuses := make([]RepoBranchStatus, len(repos))
	g, _ := errgroup.WithContext(ctx)
	for i, info := range repos {
		g.Go(func() error {
			status, err := o.repoStatus(attempt, &info)
			if err != nil {
				return err
			}
			statuses[i] = *status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (o *Orchestrator) repoStatus(attempt *db.Attempt, info *db.AttemptRepoInfo) (*RepoBranchStatus, error) {
	status := &RepoBranchStatus{
		RepoID:       info.Repo.ID,
		RepoName:     info.Repo.Name,
		TargetBranch: info.TargetBranch,
	}

	wtPath := o.container.WorktreePath(attempt.ID, info.Repo.Name)
	hasWorktree := false
	if _, err := os.Stat(wtPath); err == nil {
		hasWorktree = true
	}
	dir := info.Repo.Path
	if hasWorktree {
		dir = wtPath
	}

	head, err := o.git.HeadCommit(dir, attempt.Branch)
	if err == nil {
		status.HeadCommit = head
	}

	if hasWorktree {
		uncommitted, untracked, err := o.git.WorktreeCounts(wtPath)
		if err != nil {
			return nil, err
		}
		status.Uncommitted = uncommitted
		status.Untracked = untracked

		rebasing, err := o.git.RebaseInProgress(wtPath)
		if err != nil {
			return nil, err
		}
		status.RebaseInProgress = rebasing

		files, op, err := o.git.ConflictedFiles(wtPath)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			status.ConflictedFiles = files
			status.ConflictOp = string(op)
		}
	}

	// The comparison base depends on the target's branch type: a local
	// branch compares against the local copy, a remote-tracking branch
	// against the remote one.
	branchType, err := o.git.ResolveBranchType(info.Repo.Path, info.TargetBranch)
	if err != nil {
		return nil, err
	}
	baseRef := ""
	switch branchType {
	case git.BranchTypeLocal:
		baseRef = info.TargetBranch
	case git.BranchTypeRemote:
		// A stored target may already carry the remote prefix, like
		// "origin/main". Strip it so the prefix is not applied twice.
		baseRef = o.remote + "/" + strings.TrimPrefix(info.TargetBranch, o.remote+"/")
	}
	if baseRef != "" && status.HeadCommit != "" {
		ahead, behind, err := o.git.AheadBehind(info.Repo.Path, attempt.Branch, baseRef)
		if err != nil {
			return nil, err
		}
		status.Ahead = ahead
		status.Behind = behind
	}

	// With an open PR the branch also diverges against its own upstream,
	// independent of the target.
	merge, err := o.store.LatestMergeForRepo(attempt.ID, info.Repo.ID)
	if err != nil {
		return nil, err
	}
	if merge != nil && merge.MergeType == db.MergePR && merge.PRStatus == db.PROpen {
		status.HasOpenPR = true
		upstream := o.remote + "/" + attempt.Branch
		if exists, err := o.git.RemoteBranchExists(info.Repo.Path, o.remote, attempt.Branch); err == nil && exists {
			ahead, behind, err := o.git.AheadBehind(info.Repo.Path, attempt.Branch, upstream)
			if err == nil {
				status.RemoteAhead = &ahead
				status.RemoteBehind = &behind
			}
		}
	}

	return status, nil
}
