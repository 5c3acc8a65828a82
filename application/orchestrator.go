package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rios0rios0/charmci/config"
	"github.com/rios0rios0/charmci/domain"
	"github.com/rios0rios0/charmci/infrastructure/manifest"
	"github.com/rios0rios0/charmci/infrastructure/terraform"
)

const (
	workBranchPrefix = "update-"
	variablesFile    = "variables.tf"
	versionsFile     = "versions.tf"
	channelVariable  = "channel"
)

// Orchestrator runs batch operations across the registry. It holds no state
// beyond the registry itself; every operation is a stateless pass over the
// current set of components.
type Orchestrator struct {
	cfg      *config.Config
	registry *Registry
	tags     domain.TagLister
	dryRun   bool
}

// NewOrchestrator builds an orchestrator. With dryRun set, operations apply
// local edits and log intended actions but never push, open, or merge
// anything on the remote.
func NewOrchestrator(
	cfg *config.Config,
	registry *Registry,
	tags domain.TagLister,
	dryRun bool,
) *Orchestrator {
	return &Orchestrator{cfg: cfg, registry: registry, tags: tags, dryRun: dryRun}
}

// CutRelease cuts the release branch in every managed repository, applies
// the version-override edits on a work branch, and opens a pull request per
// repository. A failure in one repository never aborts the batch: the
// returned slice carries one tagged result per repository, in URL order.
func (o *Orchestrator) CutRelease(
	ctx context.Context,
	branch, title string,
	overrides domain.VersionOverrides,
) []domain.RepoResult {
	return o.forEachRepository(ctx, func(ctx context.Context, client domain.RepositoryClient) domain.RepoResult {
		return o.cutReleaseRepo(ctx, client, branch, title, overrides)
	})
}

// SummaryPullRequests aggregates the pull request summaries for the given
// head branch across every managed repository, in repository URL order.
func (o *Orchestrator) SummaryPullRequests(
	ctx context.Context,
	branch string,
) ([]domain.PullRequestSummary, error) {
	clients := o.registry.Clients()
	perClient := make([][]domain.PullRequestSummary, len(clients))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Concurrency)
	for i, client := range clients {
		group.Go(func() error {
			summaries, err := client.ListPullRequests(groupCtx, branch)
			if err != nil {
				return fmt.Errorf("listing pull requests for %s: %w", client.URL(), err)
			}
			perClient[i] = summaries
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []domain.PullRequestSummary
	for _, summaries := range perClient {
		all = append(all, summaries...)
	}
	return all, nil
}

// Merge squash-merges the pull request for the given branch in every
// repository that has one. Unless force is set, pull requests that are not
// ready (open, mergeable, fully approved) are skipped. Each failure is
// recorded independently.
func (o *Orchestrator) Merge(ctx context.Context, branch string, force bool) []domain.RepoResult {
	return o.forEachRepository(ctx, func(ctx context.Context, client domain.RepositoryClient) domain.RepoResult {
		return o.mergeRepo(ctx, client, branch, force)
	})
}

// SummaryImages compares every declared container image against the latest
// tag published in the registry and returns the differing ones. Components
// without declared images contribute nothing, which is not an error.
func (o *Orchestrator) SummaryImages(ctx context.Context) ([]domain.ImageTagDelta, error) {
	var deltas []domain.ImageTagDelta
	for _, component := range o.registry.Components() {
		if err := component.Client.EnsureLocalCheckout(ctx); err != nil {
			return nil, fmt.Errorf("checking out %s: %w", component.RepoURL(), err)
		}
		for _, ref := range component.Refs {
			meta, err := o.loadMetadata(component, ref)
			if err != nil {
				logger.Debugf("No charm metadata for %s: %v", ref.Name, err)
				continue
			}
			deltas = append(deltas, o.imageDeltas(ctx, ref.Name, meta)...)
		}
	}
	return deltas, nil
}

// UpdateImageTags reuses the release-cut machinery scoped to the image
// reference fields: per repository it cuts branch from the tracked base,
// rewrites outdated upstream-source entries in the charm metadata files, and
// opens a pull request against the base branch.
func (o *Orchestrator) UpdateImageTags(
	ctx context.Context,
	branch, title string,
) []domain.RepoResult {
	return o.forEachRepository(ctx, func(ctx context.Context, client domain.RepositoryClient) domain.RepoResult {
		return o.updateImagesRepo(ctx, client, branch, title)
	})
}

// forEachRepository runs fn once per distinct repository through a bounded
// worker pool. Results come back in repository URL order regardless of
// completion order.
func (o *Orchestrator) forEachRepository(
	ctx context.Context,
	fn func(ctx context.Context, client domain.RepositoryClient) domain.RepoResult,
) []domain.RepoResult {
	clients := o.registry.Clients()
	results := make([]domain.RepoResult, len(clients))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.Concurrency)
	for i, client := range clients {
		group.Go(func() error {
			results[i] = fn(groupCtx, client)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (o *Orchestrator) cutReleaseRepo(
	ctx context.Context,
	client domain.RepositoryClient,
	branch, title string,
	overrides domain.VersionOverrides,
) domain.RepoResult {
	url := client.URL()
	components := o.registry.ComponentsOf(url)
	base := components[0].Branch()

	if err := client.EnsureLocalCheckout(ctx); err != nil {
		return failed(url, err)
	}

	if err := client.CreateBranch(branch, base); err != nil {
		if errors.Is(err, domain.ErrBranchExists) {
			logger.Warnf("Branch %q already exists in %s, skipping", branch, url)
			return skipped(url, fmt.Sprintf("branch %q already exists", branch))
		}
		return failed(url, err)
	}

	workBranch := workBranchPrefix + branch
	if err := client.CreateBranch(workBranch, branch); err != nil {
		if errors.Is(err, domain.ErrBranchExists) {
			logger.Warnf("Branch %q already exists in %s, skipping", workBranch, url)
			return skipped(url, fmt.Sprintf("branch %q already exists", workBranch))
		}
		return failed(url, err)
	}
	if err := client.Switch(workBranch); err != nil {
		return failed(url, err)
	}

	for _, component := range components {
		for _, ref := range component.Refs {
			if err := applyOverrides(client, ref, overrides); err != nil {
				return failed(url, err)
			}
		}
	}

	dirty, err := client.IsDirty()
	if err != nil {
		return failed(url, err)
	}
	if !dirty {
		logger.Infof("No version overrides applied in %s, skipping", url)
		return skipped(url, "no changes to commit")
	}

	if o.dryRun {
		logger.Infof(
			"Dry run: would commit, push %q and %q, and open a pull request on %s",
			branch, workBranch, url,
		)
		return domain.RepoResult{Repository: url, Outcome: domain.OutcomeOK}
	}

	if err := client.Commit(title); err != nil {
		return failed(url, err)
	}
	if err := client.Push(ctx, branch, false); err != nil {
		return failed(url, err)
	}
	if err := client.Push(ctx, workBranch, false); err != nil {
		return failed(url, err)
	}

	return o.ensurePullRequest(ctx, client, workBranch, branch, title, components)
}

func (o *Orchestrator) mergeRepo(
	ctx context.Context,
	client domain.RepositoryClient,
	branch string,
	force bool,
) domain.RepoResult {
	url := client.URL()

	summaries, err := client.ListPullRequests(ctx, branch)
	if err != nil {
		return failed(url, err)
	}
	if len(summaries) == 0 {
		return skipped(url, fmt.Sprintf("no open pull request for branch %q", branch))
	}

	result := domain.RepoResult{Repository: url, Outcome: domain.OutcomeOK}
	for _, summary := range summaries {
		if !force && !summary.ReadyToMerge() {
			logger.Warnf("PR #%d in %s is not ready to merge, skipping", summary.Number, url)
			return skipped(url, fmt.Sprintf("pull request #%d is not ready to merge", summary.Number))
		}
		if o.dryRun {
			logger.Infof("Dry run: would merge PR #%d in %s", summary.Number, url)
			continue
		}
		if mergeErr := client.MergePullRequest(ctx, summary.Number, summary.Title); mergeErr != nil {
			return failed(url, mergeErr)
		}
		result.PullRequestURL = summary.URL
	}
	return result
}

func (o *Orchestrator) updateImagesRepo(
	ctx context.Context,
	client domain.RepositoryClient,
	branch, title string,
) domain.RepoResult {
	url := client.URL()
	components := o.registry.ComponentsOf(url)
	base := components[0].Branch()

	if err := client.EnsureLocalCheckout(ctx); err != nil {
		return failed(url, err)
	}

	if err := client.CreateBranch(branch, base); err != nil {
		if errors.Is(err, domain.ErrBranchExists) {
			logger.Warnf("Branch %q already exists in %s, skipping", branch, url)
			return skipped(url, fmt.Sprintf("branch %q already exists", branch))
		}
		return failed(url, err)
	}
	if err := client.Switch(branch); err != nil {
		return failed(url, err)
	}

	for _, component := range components {
		for _, ref := range component.Refs {
			if err := o.rewriteImageTags(ctx, client, component, ref); err != nil {
				return failed(url, err)
			}
		}
	}

	dirty, err := client.IsDirty()
	if err != nil {
		return failed(url, err)
	}
	if !dirty {
		return skipped(url, "declared images already match the registry")
	}

	if o.dryRun {
		logger.Infof("Dry run: would commit, push %q, and open a pull request on %s", branch, url)
		return domain.RepoResult{Repository: url, Outcome: domain.OutcomeOK}
	}

	if err := client.Commit(title); err != nil {
		return failed(url, err)
	}
	if err := client.Push(ctx, branch, false); err != nil {
		return failed(url, err)
	}

	return o.ensurePullRequest(ctx, client, branch, base, title, components)
}

// ensurePullRequest opens the pull request from head into base unless one
// already exists for the head branch.
func (o *Orchestrator) ensurePullRequest(
	ctx context.Context,
	client domain.RepositoryClient,
	head, base, title string,
	components []*ManagedComponent,
) domain.RepoResult {
	url := client.URL()

	existing, err := client.FindPullRequest(ctx, head)
	if err != nil {
		return failed(url, err)
	}
	if existing != nil {
		logger.Infof("Reusing existing PR #%d in %s", existing.Number, url)
		return domain.RepoResult{
			Repository:     url,
			Outcome:        domain.OutcomeOK,
			PullRequestURL: existing.URL,
		}
	}

	pull, err := client.OpenPullRequest(ctx, head, base, title, pullRequestBody(components))
	if err != nil {
		return failed(url, err)
	}
	return domain.RepoResult{
		Repository:     url,
		Outcome:        domain.OutcomeOK,
		PullRequestURL: pull.URL,
	}
}

func applyOverrides(
	client domain.RepositoryClient,
	ref domain.CharmRef,
	overrides domain.VersionOverrides,
) error {
	if overrides.ChannelTrack != "" {
		transform := terraform.SetVariableDefault(channelVariable, overrides.ChannelTrack)
		if err := client.UpdateFile(path.Join(ref.Path, variablesFile), transform); err != nil {
			return fmt.Errorf("pinning channel for %s: %w", ref.Name, err)
		}
	}
	if len(overrides.ProviderVersions) > 0 {
		transform := terraform.SetRequiredProviderVersions(overrides.ProviderVersions)
		if err := client.UpdateFile(path.Join(ref.Path, versionsFile), transform); err != nil {
			return fmt.Errorf("bumping provider versions for %s: %w", ref.Name, err)
		}
	}
	return nil
}

// rewriteImageTags rewrites each outdated upstream-source entry of the
// charm's metadata file in place, leaving the rest of the file untouched.
func (o *Orchestrator) rewriteImageTags(
	ctx context.Context,
	client domain.RepositoryClient,
	component *ManagedComponent,
	ref domain.CharmRef,
) error {
	meta, err := o.loadMetadata(component, ref)
	if err != nil {
		logger.Debugf("No charm metadata for %s: %v", ref.Name, err)
		return nil
	}

	metaFile, err := manifest.FindMetadataFile(filepath.Join(client.BasePath(), ref.Path))
	if err != nil {
		return nil
	}

	for _, image := range sortedImages(meta.Images) {
		repo, declared := splitImageTag(image)
		latest, tagErr := o.tags.LatestTag(ctx, image)
		if tagErr != nil {
			logger.Warnf("Could not resolve latest tag for %s: %v", image, tagErr)
			continue
		}
		if latest == declared {
			continue
		}

		updated := repo + ":" + latest
		logger.Infof("Updating %s: %s -> %s", ref.Name, image, updated)
		transform := func(src []byte) ([]byte, error) {
			return bytes.ReplaceAll(src, []byte(image), []byte(updated)), nil
		}
		if updateErr := client.UpdateFile(path.Join(ref.Path, metaFile), transform); updateErr != nil {
			return fmt.Errorf("updating image tags for %s: %w", ref.Name, updateErr)
		}
	}
	return nil
}

func (o *Orchestrator) imageDeltas(
	ctx context.Context,
	charm string,
	meta *domain.CharmMetadata,
) []domain.ImageTagDelta {
	var deltas []domain.ImageTagDelta
	for _, resource := range sortedResources(meta.Images) {
		image := meta.Images[resource]
		_, declared := splitImageTag(image)

		latest, err := o.tags.LatestTag(ctx, image)
		if err != nil {
			logger.Warnf("Could not resolve latest tag for %s: %v", image, err)
			continue
		}
		if latest == declared {
			continue
		}

		deltas = append(deltas, domain.ImageTagDelta{
			Charm:       charm,
			Resource:    resource,
			Image:       image,
			DeclaredTag: declared,
			LatestTag:   latest,
		})
	}
	return deltas
}

// loadMetadata reads the charm metadata under the ref's module directory,
// caching the first successful read on the component.
func (o *Orchestrator) loadMetadata(
	component *ManagedComponent,
	ref domain.CharmRef,
) (*domain.CharmMetadata, error) {
	if component.Meta != nil && len(component.Refs) == 1 {
		return component.Meta, nil
	}

	meta, err := manifest.ReadCharmMetadata(filepath.Join(component.Client.BasePath(), ref.Path))
	if err != nil {
		return nil, err
	}
	if component.Meta == nil {
		component.Meta = meta
	}
	return meta, nil
}

func pullRequestBody(components []*ManagedComponent) string {
	var builder strings.Builder
	builder.WriteString("Automated change covering the following charms:\n")
	for _, component := range components {
		for _, ref := range component.Refs {
			fmt.Fprintf(&builder, "- `%s` (%s)\n", ref.Name, ref.Path)
		}
	}
	return builder.String()
}

// splitImageTag splits "registry/ns/name:tag" into repository and tag. The
// separator is the last colon after the last slash, so registry hosts with
// ports are left intact.
func splitImageTag(image string) (string, string) {
	colon := strings.LastIndex(image, ":")
	if colon <= strings.LastIndex(image, "/") {
		return image, ""
	}
	return image[:colon], image[colon+1:]
}

func sortedResources(images map[string]string) []string {
	resources := make([]string, 0, len(images))
	for resource := range images {
		resources = append(resources, resource)
	}
	slices.Sort(resources)
	return resources
}

func sortedImages(images map[string]string) []string {
	sorted := make([]string, 0, len(images))
	for _, image := range images {
		sorted = append(sorted, image)
	}
	slices.Sort(sorted)
	return sorted
}

func failed(url string, err error) domain.RepoResult {
	logger.Errorf("Operation failed for %s: %v", url, err)
	return domain.RepoResult{Repository: url, Outcome: domain.OutcomeFailed, Err: err}
}

func skipped(url, reason string) domain.RepoResult {
	return domain.RepoResult{Repository: url, Outcome: domain.OutcomeSkipped, Reason: reason}
}
