package hosting

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v82/github"
)

// Compile-time interface check.
var _ Provider = (*GitHubProvider)(nil)

// GitHubProvider implements Provider using the go-github library.
type GitHubProvider struct {
	client *gogithub.Client
}

// NewGitHub creates a GitHub provider authenticated with the given token.
// baseURL overrides the API endpoint for GitHub Enterprise; empty means
// github.com.
func NewGitHub(token, baseURL string) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is not set")
	}

	httpClient := &http.Client{
		Transport: &bearerTransport{token: token},
	}
	client := gogithub.NewClient(httpClient)

	if baseURL != "" {
		trimmed := strings.TrimSuffix(baseURL, "/")
		var err error
		client.BaseURL, err = client.BaseURL.Parse(trimmed + "/api/v3/")
		if err != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", baseURL, err)
		}
		client.UploadURL, err = client.UploadURL.Parse(trimmed + "/api/uploads/")
		if err != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", baseURL, err)
		}
	}

	return &GitHubProvider{client: client}, nil
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// FindOpenPR looks up the open PR with the given head branch, optionally
// narrowed to a base branch.
func (g *GitHubProvider) FindOpenPR(ctx context.Context, owner, repo, head, base string) (*PullRequest, error) {
	opts := &gogithub.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + head,
		Base:        base,
		ListOptions: gogithub.ListOptions{PerPage: 1},
	}
	prs, _, err := g.client.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return nil, ErrNoPRFound
	}
	return fromGitHubPR(prs[0]), nil
}

// GetPR fetches a PR by number.
func (g *GitHubProvider) GetPR(ctx context.Context, owner, repo string, number int64) (*PullRequest, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, int(number))
	if err != nil {
		return nil, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	return fromGitHubPR(pr), nil
}

func fromGitHubPR(pr *gogithub.PullRequest) *PullRequest {
	return &PullRequest{
		Number:         int64(pr.GetNumber()),
		URL:            pr.GetHTMLURL(),
		State:          pr.GetState(),
		Merged:         pr.GetMerged(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
		HeadBranch:     pr.GetHead().GetRef(),
		BaseBranch:     pr.GetBase().GetRef(),
	}
}
