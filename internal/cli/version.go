package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rad-security/clawkeeper-sub000/internal/shield"
)

var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print Runtime Shield version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Clawkeeper Runtime Shield %s\n", shield.Version)
		fmt.Printf("  Commit: %s\n", GitCommit)
		fmt.Printf("  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
