package domain

import "context"

// RepositoryClient wraps operations against one remote repository: a local
// working copy plus the authenticated hosting-API session. Clients are
// keyed uniquely by repository URL; components sharing a repository share
// one client instance.
type RepositoryClient interface {
	// URL returns the remote repository URL this client is bound to.
	URL() string

	// BasePath returns the root directory of the local working copy. Only
	// valid after EnsureLocalCheckout has succeeded.
	BasePath() string

	// EnsureLocalCheckout acquires the local working copy: clone if absent,
	// open and fetch if present. The checkout is kept for the lifetime of
	// the process, not released per call.
	EnsureLocalCheckout(ctx context.Context) error

	// CurrentBranch returns the branch currently checked out.
	CurrentBranch() (string, error)

	// Switch checks out the given branch in the working copy.
	Switch(branch string) error

	// CreateBranch creates branch name from base. Returns ErrBranchExists
	// when name is already present locally or on the remote.
	CreateBranch(name, base string) error

	// UpdateFile applies a content transform to a file in the working copy
	// and stages the change. No remote effect until Commit and Push.
	UpdateFile(path string, transform func([]byte) ([]byte, error)) error

	// IsDirty reports whether the working copy has uncommitted changes.
	IsDirty() (bool, error)

	// Commit records staged changes with the given message.
	Commit(message string) error

	// Push publishes the given branch to the remote.
	Push(ctx context.Context, branch string, force bool) error

	// OpenPullRequest creates a pull request from head into base. Not
	// idempotent: calling twice creates two pull requests unless the caller
	// checks FindPullRequest first.
	OpenPullRequest(ctx context.Context, head, base, title, body string) (*PullRequest, error)

	// FindPullRequest returns the open pull request whose head is the given
	// branch, or nil when none exists.
	FindPullRequest(ctx context.Context, head string) (*PullRequest, error)

	// ListPullRequests queries the remote for pull requests with the given
	// head branch and builds their summaries. The result reflects live
	// remote state at call time; re-listing re-fetches.
	ListPullRequests(ctx context.Context, head string) ([]PullRequestSummary, error)

	// MergePullRequest squash-merges the pull request with the given number.
	MergePullRequest(ctx context.Context, number int, title string) error
}

// TagLister queries a container registry for the tags published for an
// image reference such as "docker.io/charmedkubeflow/oidc-gatekeeper:ckf-1.8".
type TagLister interface {
	// LatestTag returns the most recent semantic tag published for the
	// image, or an empty string when no comparable tag exists.
	LatestTag(ctx context.Context, image string) (string, error)
}
