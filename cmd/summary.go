package cmd

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rios0rios0/charmci/application"
)

var (
	summaryBranch string
	mergeReady    bool
	forceMerge    bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the Pull Requests open for a release branch",
	Long: `Query every managed repository for the Pull Requests whose head is the
given branch and print one summary row per Pull Request: state, mergeability,
check-run outcomes, and review approvals.

With --merge, squash-merge the ones that are ready (open, mergeable, and
fully approved). --force merges them regardless of readiness.`,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVar(&summaryBranch, "branch", "", "Head branch of the Pull Requests to summarize (required)")
	summaryCmd.Flags().BoolVar(&mergeReady, "merge", false, "Merge the Pull Requests that are ready")
	summaryCmd.Flags().BoolVar(&forceMerge, "force", false, "With --merge, merge even when not ready")
	_ = summaryCmd.MarkFlagRequired("branch")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	app, err := buildAppContext()
	if err != nil {
		return err
	}

	summaries, err := app.Orchestrator.SummaryPullRequests(ctx, summaryBranch)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		logger.Warnf("No open pull requests found for branch %q", summaryBranch)
		return nil
	}

	fmt.Println(application.SummaryTable(summaries))
	logger.Infof(
		"%d of %d pull requests are ready to merge",
		len(application.ReadyToMerge(summaries)), len(summaries),
	)

	if !mergeReady {
		return nil
	}

	results := app.Orchestrator.Merge(ctx, summaryBranch, forceMerge)
	fmt.Println(application.ResultsTable(results))
	return batchError(results)
}
