package cmd

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/rios0rios0/charmci/application"
	"github.com/rios0rios0/charmci/domain"
)

var (
	cutBranch    string
	cutTitle     string
	channelTrack string
	jujuVersion  string
)

var cutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Cut a release branch across every managed repository",
	Long: `Cut the given release branch in each managed repository, pin the channel
variable and provider versions on a work branch, and open one Pull Request
per repository. Repositories where the branch already exists are skipped.`,
	RunE: runCut,
}

func init() {
	cutCmd.Flags().StringVar(&cutBranch, "branch", "", "Name of the release branch to cut (required)")
	cutCmd.Flags().StringVar(&cutTitle, "title", "", "Pull Request title (default: derived from the branch)")
	cutCmd.Flags().StringVar(&channelTrack, "channel-track", "", "Value to pin the channel variable to (e.g. 1.10/stable)")
	cutCmd.Flags().StringVar(&jujuVersion, "juju-version", "", "Minimum juju provider version to require (e.g. 0.14.0)")
	_ = cutCmd.MarkFlagRequired("branch")
	rootCmd.AddCommand(cutCmd)
}

func runCut(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	overrides, err := buildOverrides()
	if err != nil {
		return err
	}

	app, err := buildAppContext()
	if err != nil {
		return err
	}

	title := cutTitle
	if title == "" {
		title = fmt.Sprintf("Cut release %s", cutBranch)
	}

	logger.Infof("Cutting release branch %q across %d repositories", cutBranch, len(app.Registry.Clients()))
	results := app.Orchestrator.CutRelease(ctx, cutBranch, title, overrides)
	fmt.Println(application.ResultsTable(results))

	return batchError(results)
}

func buildOverrides() (domain.VersionOverrides, error) {
	overrides := domain.VersionOverrides{ChannelTrack: channelTrack}
	if jujuVersion != "" {
		if !semver.IsValid("v" + jujuVersion) {
			return overrides, fmt.Errorf("invalid juju provider version %q", jujuVersion)
		}
		overrides.ProviderVersions = map[string]string{
			"juju": ">= " + jujuVersion,
		}
	}
	return overrides, nil
}

// batchError turns the per-repository results into the command's exit
// status: failures surface as a single error after the whole batch ran.
func batchError(results []domain.RepoResult) error {
	failures := 0
	for _, result := range results {
		if result.Outcome == domain.OutcomeFailed {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d repositories failed", failures, len(results))
	}
	return nil
}
