package cmd

import (
	"github.com/spf13/cobra"

	"github.com/webshell-project/bootstrapper/internal/pipeline"
	"github.com/webshell-project/bootstrapper/internal/platform"
)

// supportLibURLs are the per-platform defaults for the optional plugin
// support library.
var supportLibURLs = map[platform.OS]string{
	platform.Windows: "https://dl.webshell-project.org/plugin-support/support.dll",
	platform.Linux:   "https://dl.webshell-project.org/plugin-support/support.so",
	platform.MacOS:   "https://dl.webshell-project.org/plugin-support/support.dylib",
}

var (
	forceInstall     bool
	bundleDir        string
	pluginSupport    bool
	pluginSupportURL string

	installCmd = &cobra.Command{
		Use:   "install",
		Short: "downloads the runtime and grafts the application bundle into it",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := platform.Resolve(outputDir)
			if err != nil {
				return err
			}

			supportURL := pluginSupportURL
			if pluginSupport && supportURL == "" {
				supportURL = supportLibURLs[profile.OS]
			}

			p := pipeline.New(pipeline.Options{
				Profile:          profile,
				BundleDir:        bundleDir,
				Force:            forceInstall,
				PluginSupport:    pluginSupport,
				PluginSupportURL: supportURL,
			})
			return p.Run(cmd.Context())
		},
	}
)

func init() {
	installCmd.Flags().BoolVarP(&forceInstall, "force", "f", false, "skip the version check and always download")
	installCmd.Flags().StringVarP(&bundleDir, "bundle-dir", "b", "application", "source distribution of the application shell")
	installCmd.Flags().BoolVar(&pluginSupport, "plugin-support", false, "download the plugin support library")
	installCmd.Flags().StringVar(&pluginSupportURL, "plugin-support-url", "", "override the plugin support library URL")
}
