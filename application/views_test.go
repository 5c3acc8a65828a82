package application_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rios0rios0/charmci/application"
	"github.com/rios0rios0/charmci/domain"
)

func TestReadyToMerge(t *testing.T) {
	t.Parallel()

	t.Run("should keep only open, mergeable and fully approved pull requests", func(t *testing.T) {
		t.Parallel()

		// given
		summaries := []domain.PullRequestSummary{
			{Number: 1, State: "open", Mergeable: true, ApprovalsGiven: 2, ApprovalsTotal: 2},
			{Number: 2, State: "open", Mergeable: false, ApprovalsGiven: 2, ApprovalsTotal: 2},
			{Number: 3, State: "closed", Mergeable: true, ApprovalsGiven: 2, ApprovalsTotal: 2},
			{Number: 4, State: "open", Mergeable: true, ApprovalsGiven: 1, ApprovalsTotal: 2},
			{Number: 5, State: "open", Mergeable: true, ApprovalsGiven: 0, ApprovalsTotal: 0},
		}

		// when
		ready := application.ReadyToMerge(summaries)

		// then
		require.Len(t, ready, 1)
		assert.Equal(t, 1, ready[0].Number)
	})
}

func TestTables(t *testing.T) {
	t.Parallel()

	t.Run("should render one row per pull request summary", func(t *testing.T) {
		t.Parallel()

		// given
		summaries := []domain.PullRequestSummary{{
			Repository:     "https://github.com/canonical/repo1",
			Number:         12,
			State:          "open",
			Mergeable:      true,
			ChecksSuccess:  8,
			ApprovalsGiven: 1,
			ApprovalsTotal: 2,
			URL:            "https://github.com/canonical/repo1/pull/12",
		}}

		// when
		rendered := application.SummaryTable(summaries)

		// then
		assert.Contains(t, rendered, "#12")
		assert.Contains(t, rendered, "8 ok")
		assert.Contains(t, rendered, "1/2")
	})

	t.Run("should render the skip reason and the failure cause", func(t *testing.T) {
		t.Parallel()

		// given
		results := []domain.RepoResult{
			{Repository: "repo1", Outcome: domain.OutcomeSkipped, Reason: "branch already exists"},
			{Repository: "repo2", Outcome: domain.OutcomeFailed, Err: errors.New("connection refused")},
			{Repository: "repo3", Outcome: domain.OutcomeOK, PullRequestURL: "https://example.com/pr/1"},
		}

		// when
		rendered := application.ResultsTable(results)

		// then
		assert.Contains(t, rendered, "branch already exists")
		assert.Contains(t, rendered, "connection refused")
		assert.Contains(t, rendered, "https://example.com/pr/1")
	})

	t.Run("should render one row per image delta", func(t *testing.T) {
		t.Parallel()

		// given
		deltas := []domain.ImageTagDelta{{
			Charm:       "dex-auth",
			Resource:    "oci-image",
			Image:       "docker.io/charmedkubeflow/dex:2.39.0",
			DeclaredTag: "2.39.0",
			LatestTag:   "2.41.0",
		}}

		// when
		rendered := application.ImageTable(deltas)

		// then
		assert.Contains(t, rendered, "dex-auth")
		assert.Contains(t, rendered, "2.41.0")
	})
}
