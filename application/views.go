package application

import (
	"fmt"

	"github.com/gosuri/uitable"

	"github.com/rios0rios0/charmci/domain"
)

// ReadyToMerge filters the summaries down to pull requests that can be
// merged right away.
func ReadyToMerge(summaries []domain.PullRequestSummary) []domain.PullRequestSummary {
	var ready []domain.PullRequestSummary
	for _, summary := range summaries {
		if summary.ReadyToMerge() {
			ready = append(ready, summary)
		}
	}
	return ready
}

// SummaryTable renders pull request summaries as an aligned table.
func SummaryTable(summaries []domain.PullRequestSummary) string {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("REPOSITORY", "PR", "STATE", "MERGEABLE", "CHECKS", "APPROVALS", "URL")
	for _, s := range summaries {
		table.AddRow(
			s.Repository,
			fmt.Sprintf("#%d", s.Number),
			s.State,
			s.Mergeable,
			fmt.Sprintf("%d ok / %d failed / %d skipped", s.ChecksSuccess, s.ChecksFailure, s.ChecksSkipped),
			fmt.Sprintf("%d/%d", s.ApprovalsGiven, s.ApprovalsTotal),
			s.URL,
		)
	}
	return table.String()
}

// ResultsTable renders the per-repository outcomes of a batch operation.
func ResultsTable(results []domain.RepoResult) string {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("REPOSITORY", "OUTCOME", "DETAIL")
	for _, result := range results {
		detail := result.PullRequestURL
		switch result.Outcome {
		case domain.OutcomeSkipped:
			detail = result.Reason
		case domain.OutcomeFailed:
			detail = result.Err.Error()
		}
		table.AddRow(result.Repository, string(result.Outcome), detail)
	}
	return table.String()
}

// ImageTable renders the declared-versus-latest image tag deltas.
func ImageTable(deltas []domain.ImageTagDelta) string {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("CHARM", "RESOURCE", "IMAGE", "DECLARED", "LATEST")
	for _, delta := range deltas {
		table.AddRow(delta.Charm, delta.Resource, delta.Image, delta.DeclaredTag, delta.LatestTag)
	}
	return table.String()
}
