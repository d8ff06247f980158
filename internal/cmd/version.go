package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build, Crucible, and Go details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()

		fmt.Printf("%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		fmt.Printf("Commit: %s\n", versionInfo.Commit)
		fmt.Printf("Built: %s\n", versionInfo.BuildDate)
		fmt.Printf("Go: %s\n", runtime.Version())
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("\n")

		ssot := crucible.GetVersion()
		fmt.Printf("Gofulmen: %s\n", ssot.Gofulmen)
		fmt.Printf("Crucible: %s\n", ssot.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
