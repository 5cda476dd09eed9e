package cmd

import (
	"github.com/spf13/cobra"

	"github.com/webshell-project/bootstrapper/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the bootstrapper version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Version())
	},
}
