package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leafpkg/leaf/pkg/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("leaf %s (%s/%s, %s)\n", engine.LeafVersion, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
