// Package repository wraps git and hosting-API operations against a single
// remote repository: a go-git local working copy plus an authenticated
// GitHub session.
package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gh "github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-retryablehttp"
	logger "github.com/sirupsen/logrus"

	"github.com/rios0rios0/charmci/config"
	"github.com/rios0rios0/charmci/domain"
)

const originName = "origin"

var (
	httpsURLPattern = regexp.MustCompile(`^https?://(?:.+@)?github\.com/(.+?/.+?)(?:\.git)?$`)
	sshURLPattern   = regexp.MustCompile(`^git@github\.com:(.+?/.+?)(?:\.git)?$`)
)

// Client implements domain.RepositoryClient for a GitHub-hosted repository.
type Client struct {
	remoteURL string
	owner     string
	name      string
	basePath  string
	creds     config.Credentials
	github    *gh.Client
	repo      *git.Repository
}

// NewFactory returns a constructor for repository clients sharing one
// authenticated GitHub session. The underlying HTTP transport retries
// transient and rate-limit failures per the configured policy.
func NewFactory(cfg *config.Config) (func(url string) (domain.RepositoryClient, error), error) {
	githubClient := gh.NewClient(newRetryHTTPClient(cfg.Retry)).
		WithAuthToken(cfg.Credentials.Token)

	return func(url string) (domain.RepositoryClient, error) {
		return New(cfg, githubClient, url)
	}, nil
}

// New creates a client for the given remote URL. Construction is offline:
// neither the hosting API nor the filesystem is touched until
// EnsureLocalCheckout or a remote operation is called.
func New(cfg *config.Config, githubClient *gh.Client, url string) (*Client, error) {
	fullName, err := repositoryFullName(url)
	if err != nil {
		return nil, err
	}
	owner, name, _ := strings.Cut(fullName, "/")

	return &Client{
		remoteURL: url,
		owner:     owner,
		name:      name,
		basePath:  filepath.Join(cfg.Workdir, path.Base(fullName)),
		creds:     cfg.Credentials,
		github:    githubClient,
	}, nil
}

// newRetryHTTPClient builds the HTTP client used for all hosting-API calls.
func newRetryHTTPClient(policy config.RetryConfig) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = policy.Attempts
	retryClient.RetryWaitMin = time.Duration(policy.MinWait)
	retryClient.RetryWaitMax = time.Duration(policy.MaxWait)
	retryClient.Logger = logger.StandardLogger()
	return retryClient.StandardClient()
}

// repositoryFullName extracts "owner/name" from an HTTPS or SSH remote URL.
func repositoryFullName(url string) (string, error) {
	if match := httpsURLPattern.FindStringSubmatch(url); match != nil {
		return match[1], nil
	}
	if match := sshURLPattern.FindStringSubmatch(url); match != nil {
		return match[1], nil
	}
	return "", fmt.Errorf("invalid remote repository url %q", url)
}

func (c *Client) URL() string      { return c.remoteURL }
func (c *Client) BasePath() string { return c.basePath }

// EnsureLocalCheckout clones the repository under the workdir, or opens and
// fetches the existing checkout. The working copy lives until process
// teardown; repeated calls reuse it.
func (c *Client) EnsureLocalCheckout(ctx context.Context) error {
	if c.repo != nil {
		return nil
	}

	if _, statErr := os.Stat(c.basePath); statErr == nil {
		return c.openExisting(ctx)
	}

	logger.Infof("Cloning %s into %s", c.remoteURL, c.basePath)
	repo, err := git.PlainCloneContext(ctx, c.basePath, false, &git.CloneOptions{
		URL:  c.remoteURL,
		Auth: c.auth(),
	})
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	c.repo = repo
	return nil
}

func (c *Client) openExisting(ctx context.Context) error {
	logger.Debugf("Reusing existing checkout %s", c.basePath)
	repo, err := git.PlainOpen(c.basePath)
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}

	remote, err := repo.Remote(originName)
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	if urls := remote.Config().URLs; len(urls) > 0 && urls[0] != c.remoteURL {
		return &domain.LocalCheckoutError{
			Path: c.basePath,
			Err: fmt.Errorf(
				"remote mismatch: checkout points at %q, expected %q",
				urls[0], c.remoteURL,
			),
		}
	}

	fetchErr := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: originName,
		Auth:       c.auth(),
		Tags:       git.AllTags,
	})
	if fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: fetchErr}
	}

	c.repo = repo
	return nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (c *Client) CurrentBranch() (string, error) {
	if err := c.requireCheckout(); err != nil {
		return "", err
	}
	head, err := c.repo.Head()
	if err != nil {
		return "", &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	return head.Name().Short(), nil
}

// Switch checks out the given branch, creating a local tracking branch from
// origin when only the remote ref exists.
func (c *Client) Switch(branch string) error {
	if err := c.requireCheckout(); err != nil {
		return err
	}

	localRef := plumbing.NewBranchReferenceName(branch)
	if _, err := c.repo.Reference(localRef, true); err != nil {
		remoteRef := plumbing.NewRemoteReferenceName(originName, branch)
		resolved, remoteErr := c.repo.Reference(remoteRef, true)
		if remoteErr != nil {
			return &domain.LocalCheckoutError{
				Path: c.basePath,
				Err:  fmt.Errorf("branch %q not found locally or on %s", branch, originName),
			}
		}
		if setErr := c.repo.Storer.SetReference(
			plumbing.NewHashReference(localRef, resolved.Hash()),
		); setErr != nil {
			return &domain.LocalCheckoutError{Path: c.basePath, Err: setErr}
		}
	}

	worktree, err := c.repo.Worktree()
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	if checkoutErr := worktree.Checkout(&git.CheckoutOptions{Branch: localRef}); checkoutErr != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: checkoutErr}
	}
	return nil
}

// CreateBranch creates branch name from base. ErrBranchExists is returned
// when the branch is already present locally or on the remote, so batch
// operations can skip the repository without modifying it.
func (c *Client) CreateBranch(name, base string) error {
	if err := c.requireCheckout(); err != nil {
		return err
	}

	if c.branchExists(name) {
		return fmt.Errorf("creating branch %q: %w", name, domain.ErrBranchExists)
	}

	baseHash, err := c.resolveRef(base)
	if err != nil {
		return &domain.LocalCheckoutError{
			Path: c.basePath,
			Err:  fmt.Errorf("base ref %q: %w", base, err),
		}
	}

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), baseHash)
	if setErr := c.repo.Storer.SetReference(ref); setErr != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: setErr}
	}
	return nil
}

func (c *Client) branchExists(name string) bool {
	if _, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
		return true
	}
	if _, err := c.repo.Reference(plumbing.NewRemoteReferenceName(originName, name), true); err == nil {
		return true
	}
	return false
}

func (c *Client) resolveRef(name string) (plumbing.Hash, error) {
	if ref, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), true); err == nil {
		return ref.Hash(), nil
	}
	if ref, err := c.repo.Reference(plumbing.NewRemoteReferenceName(originName, name), true); err == nil {
		return ref.Hash(), nil
	}
	hash, err := c.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *hash, nil
}

// UpdateFile applies a content transform to a file in the working copy and
// stages the result. Nothing reaches the remote until Commit and Push.
func (c *Client) UpdateFile(relPath string, transform func([]byte) ([]byte, error)) error {
	if err := c.requireCheckout(); err != nil {
		return err
	}

	fullPath := filepath.Join(c.basePath, relPath)
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return &domain.LocalCheckoutError{Path: fullPath, Err: err}
	}

	updated, err := transform(content)
	if err != nil {
		return fmt.Errorf("transforming %q: %w", relPath, err)
	}

	if writeErr := os.WriteFile(fullPath, updated, 0o644); writeErr != nil {
		return &domain.LocalCheckoutError{Path: fullPath, Err: writeErr}
	}
	return c.stage(relPath)
}

func (c *Client) stage(relPath string) error {
	worktree, err := c.repo.Worktree()
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	if _, addErr := worktree.Add(relPath); addErr != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: addErr}
	}
	return nil
}

// IsDirty reports whether the working copy has uncommitted changes,
// untracked files included.
func (c *Client) IsDirty() (bool, error) {
	if err := c.requireCheckout(); err != nil {
		return false, err
	}
	worktree, err := c.repo.Worktree()
	if err != nil {
		return false, &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	status, err := worktree.Status()
	if err != nil {
		return false, &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}
	return !status.IsClean(), nil
}

// Commit records the staged changes with the configured identity.
func (c *Client) Commit(message string) error {
	if err := c.requireCheckout(); err != nil {
		return err
	}
	worktree, err := c.repo.Worktree()
	if err != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: err}
	}

	_, commitErr := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.creds.Username,
			Email: c.creds.Username + "@users.noreply.github.com",
			When:  time.Now(),
		},
	})
	if commitErr != nil {
		return &domain.LocalCheckoutError{Path: c.basePath, Err: commitErr}
	}
	return nil
}

// Push publishes the given branch to origin.
func (c *Client) Push(ctx context.Context, branch string, force bool) error {
	if err := c.requireCheckout(); err != nil {
		return err
	}

	refSpec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		refSpec = "+" + refSpec
	}

	pushErr := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: originName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(refSpec)},
		Auth:       c.auth(),
	})
	if pushErr != nil && !errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
		return &domain.RemoteAPIError{Op: "push", Err: pushErr}
	}
	return nil
}

func (c *Client) auth() *githttp.BasicAuth {
	return &githttp.BasicAuth{
		Username: c.creds.Username,
		Password: c.creds.Token,
	}
}

func (c *Client) requireCheckout() error {
	if c.repo == nil {
		return &domain.LocalCheckoutError{
			Path: c.basePath,
			Err:  errors.New("no local checkout, call EnsureLocalCheckout first"),
		}
	}
	return nil
}
