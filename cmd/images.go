package cmd

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rios0rios0/charmci/application"
)

var (
	updateImages bool
	imagesBranch string
	imagesTitle  string
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Compare declared container-image tags against the registry",
	Long: `Read the declared oci-image resources of every managed charm and compare
each upstream-source tag against the latest tag published in the container
registry.

With --update, rewrite the outdated references on a branch and open one
Pull Request per repository.`,
	RunE: runImages,
}

func init() {
	imagesCmd.Flags().BoolVar(&updateImages, "update", false, "Rewrite outdated image references and open Pull Requests")
	imagesCmd.Flags().StringVar(&imagesBranch, "branch", "update-image-tags", "Branch to apply the image updates on")
	imagesCmd.Flags().StringVar(&imagesTitle, "title", "chore: update image tags", "Pull Request title for the image updates")
	rootCmd.AddCommand(imagesCmd)
}

func runImages(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	app, err := buildAppContext()
	if err != nil {
		return err
	}

	if updateImages {
		results := app.Orchestrator.UpdateImageTags(ctx, imagesBranch, imagesTitle)
		fmt.Println(application.ResultsTable(results))
		return batchError(results)
	}

	deltas, err := app.Orchestrator.SummaryImages(ctx)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		logger.Info("Every declared image tag matches the registry")
		return nil
	}

	fmt.Println(application.ImageTable(deltas))
	return nil
}
