package repository

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v66/github"
	logger "github.com/sirupsen/logrus"

	"github.com/rios0rios0/charmci/domain"
)

const (
	perPage        = 100
	approvedReview = "APPROVED"
	mergeMethod    = "squash"
)

// OpenPullRequest creates a pull request from head into base. It is not
// idempotent: the caller checks FindPullRequest first when a duplicate
// would be a problem.
func (c *Client) OpenPullRequest(
	ctx context.Context,
	head, base, title, body string,
) (*domain.PullRequest, error) {
	pull, _, err := c.github.PullRequests.Create(ctx, c.owner, c.name, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(head),
		Base:  gh.String(base),
		Body:  gh.String(body),
	})
	if err != nil {
		return nil, &domain.RemoteAPIError{Op: "create pull request", Err: err}
	}

	logger.Infof("Opened PR #%d: %s", pull.GetNumber(), pull.GetHTMLURL())
	return convertPull(pull), nil
}

// FindPullRequest returns the open pull request whose head is the given
// branch, or nil when none exists. More than one open pull request for the
// same head is an error.
func (c *Client) FindPullRequest(
	ctx context.Context,
	head string,
) (*domain.PullRequest, error) {
	pulls, err := c.listPullsByHead(ctx, head)
	if err != nil {
		return nil, err
	}
	if len(pulls) > 1 {
		return nil, &domain.RemoteAPIError{
			Op:  "find pull request",
			Err: fmt.Errorf("more than one open pull request with head %q", head),
		}
	}
	if len(pulls) == 0 {
		return nil, nil
	}
	return convertPull(pulls[0]), nil
}

// ListPullRequests builds a summary for every pull request with the given
// head branch. The result reflects live remote state at call time.
func (c *Client) ListPullRequests(
	ctx context.Context,
	head string,
) ([]domain.PullRequestSummary, error) {
	pulls, err := c.listPullsByHead(ctx, head)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.PullRequestSummary, 0, len(pulls))
	for _, pull := range pulls {
		summary, summaryErr := c.summarize(ctx, pull, head)
		if summaryErr != nil {
			return nil, summaryErr
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// MergePullRequest squash-merges the pull request with the given number.
func (c *Client) MergePullRequest(ctx context.Context, number int, title string) error {
	commitTitle := fmt.Sprintf("%s (#%d)", title, number)
	_, _, err := c.github.PullRequests.Merge(
		ctx, c.owner, c.name, number, "merged by charmci",
		&gh.PullRequestOptions{
			MergeMethod: mergeMethod,
			CommitTitle: commitTitle,
		},
	)
	if err != nil {
		return &domain.RemoteAPIError{Op: "merge pull request", Err: err}
	}
	logger.Infof("Merged PR #%d in %s/%s", number, c.owner, c.name)
	return nil
}

func (c *Client) listPullsByHead(
	ctx context.Context,
	head string,
) ([]*gh.PullRequest, error) {
	var all []*gh.PullRequest
	opts := &gh.PullRequestListOptions{
		State:       "open",
		Head:        c.owner + ":" + head,
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	for {
		pulls, resp, err := c.github.PullRequests.List(ctx, c.owner, c.name, opts)
		if err != nil {
			return nil, &domain.RemoteAPIError{Op: "list pull requests", Err: err}
		}
		for _, pull := range pulls {
			// The head filter matches by label; keep exact-ref matches only.
			if pull.GetHead().GetRef() == head {
				all = append(all, pull)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// summarize fetches the detail view of a pull request (the list endpoint
// does not populate mergeability), the check-run conclusions of its last
// commit, and its review approvals.
func (c *Client) summarize(
	ctx context.Context,
	pull *gh.PullRequest,
	head string,
) (domain.PullRequestSummary, error) {
	number := pull.GetNumber()

	detail, _, err := c.github.PullRequests.Get(ctx, c.owner, c.name, number)
	if err != nil {
		return domain.PullRequestSummary{}, &domain.RemoteAPIError{
			Op: "get pull request", Err: err,
		}
	}

	summary := domain.PullRequestSummary{
		Repository: c.remoteURL,
		Branch:     head,
		Number:     number,
		Title:      detail.GetTitle(),
		State:      detail.GetState(),
		URL:        detail.GetHTMLURL(),
		Mergeable:  detail.GetMergeable(),
	}

	if countErr := c.countCheckRuns(ctx, detail.GetHead().GetSHA(), &summary); countErr != nil {
		return domain.PullRequestSummary{}, countErr
	}
	if reviewErr := c.countApprovals(ctx, number, &summary); reviewErr != nil {
		return domain.PullRequestSummary{}, reviewErr
	}
	return summary, nil
}

func (c *Client) countCheckRuns(
	ctx context.Context,
	sha string,
	summary *domain.PullRequestSummary,
) error {
	opts := &gh.ListCheckRunsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	for {
		runs, resp, err := c.github.Checks.ListCheckRunsForRef(
			ctx, c.owner, c.name, sha, opts,
		)
		if err != nil {
			return &domain.RemoteAPIError{Op: "list check runs", Err: err}
		}
		for _, run := range runs.CheckRuns {
			switch run.GetConclusion() {
			case "success":
				summary.ChecksSuccess++
			case "failure":
				summary.ChecksFailure++
			case "skipped":
				summary.ChecksSkipped++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

func (c *Client) countApprovals(
	ctx context.Context,
	number int,
	summary *domain.PullRequestSummary,
) error {
	opts := &gh.ListOptions{PerPage: perPage}
	for {
		reviews, resp, err := c.github.PullRequests.ListReviews(
			ctx, c.owner, c.name, number, opts,
		)
		if err != nil {
			return &domain.RemoteAPIError{Op: "list reviews", Err: err}
		}
		for _, review := range reviews {
			summary.ApprovalsTotal++
			if review.GetState() == approvedReview {
				summary.ApprovalsGiven++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

func convertPull(pull *gh.PullRequest) *domain.PullRequest {
	return &domain.PullRequest{
		Number: pull.GetNumber(),
		Title:  pull.GetTitle(),
		URL:    pull.GetHTMLURL(),
		State:  pull.GetState(),
	}
}
