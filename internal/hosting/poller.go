package hosting

import (
	"context"
	"log/slog"
	"time"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/events"
	"github.com/greenroomhq/greenroom/internal/git"
)

// Poller periodically refreshes tracked open pull requests. A PR that merged
// advances its task to done; a closed one is recorded as closed.
type Poller struct {
	store    *db.Store
	git      *git.Service
	provider Provider
	events   events.Publisher
	logger   *slog.Logger
	remote   string
	interval time.Duration
}

// NewPoller creates a PR status poller.
func NewPoller(store *db.Store, gitSvc *git.Service, provider Provider, publisher events.Publisher, remote string, interval time.Duration, logger *slog.Logger) *Poller {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		store:    store,
		git:      gitSvc,
		provider: provider,
		events:   publisher,
		logger:   logger,
		remote:   remote,
		interval: interval,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll refreshes every open PR merge record once. Failures on individual
// records are logged and skipped so one unreachable repo cannot stall the
// rest.
func (p *Poller) Poll(ctx context.Context) {
	merges, err := p.store.ListOpenPRMerges()
	if err != nil {
		p.logger.Error("list open PR merges failed", "error", err)
		return
	}
	for _, merge := range merges {
		if err := p.refresh(ctx, &merge); err != nil {
			p.logger.Warn("refresh PR failed",
				"merge", merge.ID, "pr", merge.PRNumber, "error", err)
		}
	}
}

func (p *Poller) refresh(ctx context.Context, merge *db.Merge) error {
	repo, err := p.store.GetRepo(merge.RepoID)
	if err != nil {
		return err
	}
	if repo == nil {
		return nil
	}
	remoteURL, err := p.git.RemoteURL(repo.Path, p.remote)
	if err != nil {
		return err
	}
	owner, name := ParseOwnerRepo(remoteURL)
	if owner == "" || name == "" {
		return nil
	}

	pr, err := p.provider.GetPR(ctx, owner, name, merge.PRNumber)
	if err != nil {
		return err
	}

	status := db.PROpen
	switch {
	case pr.Merged:
		status = db.PRMerged
	case pr.State == "closed":
		status = db.PRClosed
	}
	if status == db.PROpen {
		return nil
	}

	if err := p.store.UpdatePRStatus(merge.ID, status, pr.MergeCommitSHA); err != nil {
		return err
	}
	if status == db.PRMerged {
		if err := p.advanceTask(merge.AttemptID); err != nil {
			p.logger.Warn("advance task after PR merge failed",
				"attempt", merge.AttemptID, "error", err)
		}
	}

	p.events.Publish(events.NewEvent(events.EventPRStatusChanged, merge.AttemptID, events.MergeData{
		RepoID:       merge.RepoID,
		TargetBranch: merge.TargetBranch,
		MergeCommit:  pr.MergeCommitSHA,
		PRNumber:     merge.PRNumber,
	}))
	return nil
}

func (p *Poller) advanceTask(attemptID string) error {
	attempt, err := p.store.GetAttempt(attemptID)
	if err != nil || attempt == nil {
		return err
	}
	return p.store.UpdateTaskStatus(attempt.TaskID, db.TaskDone)
}
