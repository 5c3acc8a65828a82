package cmd

import (
	"fmt"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var snapshotOut string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Dump the component registry to a reloadable snapshot",
	Long: `Parse the configured manifests, build the component registry, and write a
key-ordered YAML snapshot of it. The snapshot can be passed back to any
read-only command through --from-snapshot to skip manifest parsing.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotOut, "out", "", "File to write the snapshot to (default: stdout)")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(_ *cobra.Command, _ []string) error {
	app, err := buildAppContext()
	if err != nil {
		return err
	}

	out := os.Stdout
	if snapshotOut != "" {
		file, createErr := os.Create(snapshotOut)
		if createErr != nil {
			return fmt.Errorf("creating snapshot file %q: %w", snapshotOut, createErr)
		}
		defer func() { _ = file.Close() }()
		out = file
	}

	if err := app.Registry.Dump(out); err != nil {
		return err
	}
	if snapshotOut != "" {
		logger.Infof("Registry snapshot written to %s", snapshotOut)
	}
	return nil
}
