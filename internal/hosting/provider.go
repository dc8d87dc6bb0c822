// Package hosting integrates with the git hosting provider for pull request
// discovery and status tracking. Currently GitHub behind a small Provider
// interface, leaving room for other forges.
package hosting

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNoPRFound is returned when no open PR exists for the given branch.
var ErrNoPRFound = errors.New("no pull request found for branch")

// PullRequest is the provider-neutral view of a pull request.
type PullRequest struct {
	Number         int64  `json:"number"`
	URL            string `json:"url"`
	State          string `json:"state"` // open, closed
	Merged         bool   `json:"merged"`
	MergeCommitSHA string `json:"merge_commit_sha,omitempty"`
	HeadBranch     string `json:"head_branch"`
	BaseBranch     string `json:"base_branch"`
}

// Provider is the hosting surface the orchestrator and PR poller depend on.
type Provider interface {
	// FindOpenPR returns the open PR whose head is the given branch.
	// Returns ErrNoPRFound when the branch has none.
	FindOpenPR(ctx context.Context, owner, repo, head, base string) (*PullRequest, error)
	// GetPR fetches a PR by number.
	GetPR(ctx context.Context, owner, repo string, number int64) (*PullRequest, error)
}

var (
	sshPattern      = regexp.MustCompile(`^git@[^:]+:(.+)$`)
	sshURLPattern   = regexp.MustCompile(`^ssh://[^/]+/(.+)$`)
	httpsPattern    = regexp.MustCompile(`^https?://[^/]+/(.+)$`)
	hostPathPattern = regexp.MustCompile(`[^/]+\.[^/]+/(.+)$`)
)

// ParseOwnerRepo extracts owner and repo from a git remote URL. Handles
// git@host:owner/repo.git, ssh://git@host[:port]/owner/repo,
// https://host/owner/repo.git, and nested paths (the last two segments win).
func ParseOwnerRepo(rawURL string) (owner, repo string) {
	rawURL = strings.TrimSpace(rawURL)
	rawURL = strings.TrimSuffix(rawURL, ".git")

	for _, p := range []*regexp.Regexp{sshPattern, sshURLPattern, httpsPattern, hostPathPattern} {
		if matches := p.FindStringSubmatch(rawURL); len(matches) == 2 {
			return lastTwoSegments(matches[1])
		}
	}
	return "", ""
}

// lastTwoSegments takes a path like "org/subgroup/repo" and returns the last
// two segments, handling nested group paths.
func lastTwoSegments(path string) (owner, repo string) {
	path = strings.Trim(path, "/")
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return "", ""
	}
	return segments[len(segments)-2], segments[len(segments)-1]
}
