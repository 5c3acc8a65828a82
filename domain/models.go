package domain

// CharmRef identifies one charm declared in a Terraform manifest: the
// repository it lives in, the branch it tracks, and the path of its
// Terraform module inside that repository.
type CharmRef struct {
	Name    string // Application name (module block label)
	RepoURL string // Repository URL, without the subpath or ref
	Path    string // Subpath of the Terraform module within the repository
	Branch  string // Branch (ref) the manifest pins this charm to
}

// CharmMetadata is the subset of a charm's metadata.yaml / charmcraft.yaml
// this tool cares about. Images maps resource name to the declared
// upstream-source of each oci-image resource.
type CharmMetadata struct {
	Name   string
	Docs   string
	Images map[string]string
}

// PullRequest represents a pull request returned by the hosting service.
type PullRequest struct {
	Number int
	Title  string
	URL    string
	State  string
}

// PullRequestSummary is the per-repository aggregation row built by the
// summary operation. It is rebuilt on every query and never persisted.
type PullRequestSummary struct {
	Repository     string
	Branch         string
	Number         int
	Title          string
	State          string
	URL            string
	Mergeable      bool
	ChecksSuccess  int
	ChecksFailure  int
	ChecksSkipped  int
	ApprovalsGiven int
	ApprovalsTotal int
}

// ReadyToMerge reports whether the pull request is open, mergeable, and has
// every submitted review approved.
func (s PullRequestSummary) ReadyToMerge() bool {
	return s.State == "open" && s.Mergeable &&
		s.ApprovalsTotal > 0 && s.ApprovalsGiven == s.ApprovalsTotal
}

// Outcome classifies the per-repository result of a batch operation.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// RepoResult is the tagged per-repository outcome of a batch operation.
// Batch operations return one RepoResult per repository instead of
// propagating an aggregate error: partial completion is a normal outcome
// that the caller inspects.
type RepoResult struct {
	Repository     string
	Outcome        Outcome
	PullRequestURL string
	Reason         string // Set when Outcome is "skipped"
	Err            error  // Set when Outcome is "failed"
}

// ImageTagDelta records a declared container image whose tag differs from
// the latest tag published in the registry.
type ImageTagDelta struct {
	Charm       string
	Resource    string
	Image       string
	DeclaredTag string
	LatestTag   string
}

// VersionOverrides holds the version-pinning edits applied by a release cut.
type VersionOverrides struct {
	// ChannelTrack overrides the "channel" variable default in each charm's
	// variables.tf. Empty means the charm's manifest branch is used.
	ChannelTrack string
	// ProviderVersions rewrites required_providers version constraints in
	// each charm's versions.tf (e.g. {"juju": ">= 0.14.0"}).
	ProviderVersions map[string]string
}
