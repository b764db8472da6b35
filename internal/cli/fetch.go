package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Refresh cached package indexes from enabled remotes",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "re-download every enabled remote's index regardless of cache age")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	catalogue, errs, err := eng.FetchRemotes(ctx, fetchForce)
	if err != nil {
		return wrapErr(ctx, err)
	}

	var totalSize int64
	for _, pkg := range catalogue {
		totalSize += pkg.Size
	}

	printResult(map[string]any{"packages": len(catalogue), "failed": len(errs), "total_size": totalSize}, func() {
		fmt.Printf("fetched %d package(s) (%s) across enabled remotes\n", len(catalogue), humanize.Bytes(uint64(totalSize)))
		for _, e := range errs {
			fmt.Printf("  warning: %v\n", e)
		}
	})
	return nil
}
