package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <name_version>...",
	Short: "Remove installed packages and their dependencies that nothing else needs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	seeds, err := parseSeeds(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	composed := composeEnvironment("", "")
	if err := eng.Uninstall(ctx, seeds, composed); err != nil {
		return wrapErr(ctx, err)
	}

	printResult(map[string]any{"uninstalled": len(seeds)}, func() {
		fmt.Printf("uninstalled %d package(s)\n", len(seeds))
	})
	return nil
}
