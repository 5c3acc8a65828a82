// Package testdoubles provides test doubles (spies, stubs, dummies) for domain
// interfaces. These are hand-crafted implementations — no mock frameworks.
package testdoubles

import (
	"context"
	"fmt"
	"sync"

	"github.com/rios0rios0/charmci/domain"
)

// ---------------------------------------------------------------------------
// SpyRepositoryClient
// ---------------------------------------------------------------------------

// SpyRepositoryClient implements domain.RepositoryClient as a configurable
// spy backed by an in-memory file map. Configure the response fields for the
// methods your test exercises, then inspect the call-tracking fields to
// verify behavior.
type SpyRepositoryClient struct {
	mu sync.Mutex

	// --- identity ---
	RemoteURL string
	Path      string

	// --- EnsureLocalCheckout ---
	CheckoutErr error
	// spy: number of checkout calls
	CheckoutCalls int

	// --- branches ---
	Branch          string
	SwitchErr       error
	CreateBranchErr error
	// spy: branches created as name -> base
	CreatedBranches map[string]string
	// spy: branches switched to, in order
	SwitchedTo []string

	// --- UpdateFile ---
	Files         map[string]string // path -> content
	UpdateFileErr error
	// spy: paths updated, in order
	UpdatedFiles []string

	// --- Commit / Push ---
	Dirty     bool
	CommitErr error
	PushErr   error
	// spy: messages committed, in order
	Commits []string
	// spy: branches pushed, in order
	Pushes []string

	// --- pull requests ---
	OpenedPR   *domain.PullRequest
	OpenPRErr  error
	FoundPR    *domain.PullRequest
	FindPRErr  error
	Summaries  []domain.PullRequestSummary
	ListPRsErr error
	MergePRErr error
	// spy: inputs received
	PRTitles      []string
	PRBodies      []string
	MergedNumbers []int
}

var _ domain.RepositoryClient = (*SpyRepositoryClient)(nil)

func (c *SpyRepositoryClient) URL() string      { return c.RemoteURL }
func (c *SpyRepositoryClient) BasePath() string { return c.Path }

func (c *SpyRepositoryClient) EnsureLocalCheckout(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CheckoutCalls++
	return c.CheckoutErr
}

func (c *SpyRepositoryClient) CurrentBranch() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Branch, nil
}

func (c *SpyRepositoryClient) Switch(branch string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SwitchedTo = append(c.SwitchedTo, branch)
	if c.SwitchErr != nil {
		return c.SwitchErr
	}
	c.Branch = branch
	return nil
}

func (c *SpyRepositoryClient) CreateBranch(name, base string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateBranchErr != nil {
		return c.CreateBranchErr
	}
	if c.CreatedBranches == nil {
		c.CreatedBranches = make(map[string]string)
	}
	if _, exists := c.CreatedBranches[name]; exists {
		return fmt.Errorf("creating branch %q: %w", name, domain.ErrBranchExists)
	}
	c.CreatedBranches[name] = base
	return nil
}

func (c *SpyRepositoryClient) UpdateFile(
	path string,
	transform func([]byte) ([]byte, error),
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UpdateFileErr != nil {
		return c.UpdateFileErr
	}
	content, ok := c.Files[path]
	if !ok {
		return fmt.Errorf("file not found: %s", path)
	}
	updated, err := transform([]byte(content))
	if err != nil {
		return err
	}
	c.Files[path] = string(updated)
	c.UpdatedFiles = append(c.UpdatedFiles, path)
	c.Dirty = true
	return nil
}

func (c *SpyRepositoryClient) IsDirty() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Dirty, nil
}

func (c *SpyRepositoryClient) Commit(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		return c.CommitErr
	}
	c.Commits = append(c.Commits, message)
	c.Dirty = false
	return nil
}

func (c *SpyRepositoryClient) Push(_ context.Context, branch string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PushErr != nil {
		return c.PushErr
	}
	c.Pushes = append(c.Pushes, branch)
	return nil
}

func (c *SpyRepositoryClient) OpenPullRequest(
	_ context.Context,
	_, _, title, body string,
) (*domain.PullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PRTitles = append(c.PRTitles, title)
	c.PRBodies = append(c.PRBodies, body)
	if c.OpenPRErr != nil {
		return nil, c.OpenPRErr
	}
	if c.OpenedPR != nil {
		return c.OpenedPR, nil
	}
	return &domain.PullRequest{
		Number: 1,
		Title:  title,
		URL:    "https://example.com/pr/1",
		State:  "open",
	}, nil
}

func (c *SpyRepositoryClient) FindPullRequest(
	_ context.Context,
	_ string,
) (*domain.PullRequest, error) {
	return c.FoundPR, c.FindPRErr
}

func (c *SpyRepositoryClient) ListPullRequests(
	_ context.Context,
	_ string,
) ([]domain.PullRequestSummary, error) {
	return c.Summaries, c.ListPRsErr
}

func (c *SpyRepositoryClient) MergePullRequest(
	_ context.Context,
	number int,
	_ string,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MergePRErr != nil {
		return c.MergePRErr
	}
	c.MergedNumbers = append(c.MergedNumbers, number)
	return nil
}

// ---------------------------------------------------------------------------
// StubTagLister
// ---------------------------------------------------------------------------

// StubTagLister implements domain.TagLister over a fixed image -> tag map.
type StubTagLister struct {
	Tags map[string]string // image -> latest tag
	Err  error
	// spy: images queried, in order
	Queried []string
}

var _ domain.TagLister = (*StubTagLister)(nil)

func (l *StubTagLister) LatestTag(_ context.Context, image string) (string, error) {
	l.Queried = append(l.Queried, image)
	if l.Err != nil {
		return "", l.Err
	}
	tag, ok := l.Tags[image]
	if !ok {
		return "", fmt.Errorf("no tags for image: %s", image)
	}
	return tag, nil
}
