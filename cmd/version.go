package cmd

import (
	"fmt"

	"dcgm-keeper/cmd/root"
	"dcgm-keeper/internal/env"

	"github.com/spf13/cobra"
)

func PrintVersions() {
	fmt.Printf("Version %s\n", env.SoftwareVer)
	fmt.Printf("Build Time: %s\n", env.BuildTime)
	fmt.Printf("Build Tag: %s\n", env.BuildTag)
	fmt.Printf("Build Commit ID: %s\n", env.BuildCommitId)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `The 'version' command shows version details including git commit and build time`,

	Run: func(cmd *cobra.Command, args []string) {
		PrintVersions()
	},
}

func init() {
	root.RootCmd.AddCommand(versionCmd)

	versionCmd.Example = `  dcgm-keeper version`
}
