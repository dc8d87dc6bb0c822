package orchestrator

import (
	"context"
	"errors"

	"github.com/greenroomhq/greenroom/internal/db"
	apperrors "github.com/greenroomhq/greenroom/internal/errors"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/hosting"
)

// AttachPR looks up the open pull request for the attempt branch on the
// hosting provider and records it as a tracked PR merge. The status poller
// takes over from there.
func (o *Orchestrator) AttachPR(ctx context.Context, attemptID, repoID string) (*db.Merge, error) {
	if o.hosting == nil {
		return nil, apperrors.ErrConfigMissing("github token")
	}

	attempt, info, _, err := o.attemptRepo(attemptID, repoID)
	if err != nil {
		return nil, err
	}

	remoteURL, err := o.git.RemoteURL(info.Repo.Path, o.remote)
	if err != nil {
		return nil, err
	}
	owner, name := hosting.ParseOwnerRepo(remoteURL)
	if owner == "" || name == "" {
		return nil, apperrors.ErrValidation("remote URL " + remoteURL + " is not a recognizable hosting URL")
	}

	pr, err := o.hosting.FindOpenPR(ctx, owner, name, attempt.Branch, info.TargetBranch)
	if err != nil {
		if errors.Is(err, hosting.ErrNoPRFound) {
			return nil, apperrors.ErrValidation("no open pull request found for branch " + attempt.Branch)
		}
		return nil, err
	}

	merge, err := o.store.CreatePRMerge(attemptID, repoID, pr.Number, pr.URL, info.TargetBranch)
	if err != nil {
		return nil, err
	}
	o.events.Publish(events.NewEvent(events.EventPRAttached, attemptID, events.MergeData{
		RepoID:       repoID,
		TargetBranch: info.TargetBranch,
		PRNumber:     pr.Number,
	}))
	return merge, nil
}
