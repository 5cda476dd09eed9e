package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/webshell-project/bootstrapper/internal/platform"
	"github.com/webshell-project/bootstrapper/internal/updater"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "removes the installed runtime and the version record",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := platform.Resolve(outputDir)
		if err != nil {
			return err
		}

		var merr *multierror.Error
		if err := os.RemoveAll(profile.InstallRoot); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("remove install tree: %w", err))
		}

		recordPath := filepath.Join(profile.OutputDir, updater.RecordFileName)
		if err := os.Remove(recordPath); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, fmt.Errorf("remove version record: %w", err))
		}

		return merr.ErrorOrNil()
	},
}
