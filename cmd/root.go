package cmd

import (
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	snapshotPath string
	dryRun       bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "charmci",
	Short: "Release management for a multi-repository charm ecosystem",
	Long: `A CLI tool that reads Terraform manifests to enumerate the managed charm
repositories, cuts release branches across all of them, tracks the resulting
Pull Requests, and keeps declared container-image tags in sync with the
registry.

This tool helps drive a release train across many repositories by:
- Parsing the Terraform modules that declare the managed charms
- Cutting release branches and pinning channel/provider versions
- Summarizing and merging the release Pull Requests
- Comparing declared image tags against the latest published ones`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetFormatter(&logger.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
		if verbose {
			logger.SetLevel(logger.DebugLevel)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (default: search standard locations)")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "from-snapshot", "", "Rebuild the component registry from a snapshot file instead of parsing manifests")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without touching the remote")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}
