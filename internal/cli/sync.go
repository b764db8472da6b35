package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <name_version>...",
	Short: "Re-run the sync steps of already-installed packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	targets, err := parseSeeds(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	composed := composeEnvironment("", "")
	if err := eng.Sync(ctx, targets, composed); err != nil {
		return wrapErr(ctx, err)
	}

	printResult(map[string]any{"synced": len(targets)}, func() {
		fmt.Printf("synced %d package(s)\n", len(targets))
	})
	return nil
}
