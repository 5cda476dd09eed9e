package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/webshell-project/bootstrapper/internal/platform"
	"github.com/webshell-project/bootstrapper/internal/updater"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "reports whether the installed runtime is current",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := platform.Resolve(outputDir)
		if err != nil {
			return err
		}

		oracle := updater.New(filepath.Join(profile.OutputDir, updater.RecordFileName))
		res := oracle.CheckForUpdate(cmd.Context(), profile)

		if res.UpToDate {
			cmd.Println("runtime is up to date")
		} else if res.Descriptor.IsZero() {
			cmd.Println("update availability unknown, a download is recommended")
		} else {
			cmd.Printf("update available: build %s (%s)\n", res.Descriptor.BuildID, res.Descriptor.TargetAlias)
		}
		return nil
	},
}
