package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/striezel/botvinnik-sub001/internal/version"
)

var checkUpdate bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the current version of botvinnik and check for updates.`,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&checkUpdate, "check-update", true, "Check for newer versions")
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Println(version.FullVersion())

	if !checkUpdate {
		return
	}

	hasUpdate, latestVersion, err := version.CheckForUpdate()
	if err != nil {
		fmt.Printf("Could not check for updates: %v\n", err)
		return
	}

	switch {
	case hasUpdate:
		fmt.Printf("Update available: %s (current: %s)\n", latestVersion, version.ShortVersion())
		fmt.Printf("Download from: https://github.com/striezel/botvinnik/releases/latest\n")
	case latestVersion != "":
		fmt.Printf("You are running the latest version (%s).\n", latestVersion)
	}
}
