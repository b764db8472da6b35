package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafpkg/leaf/pkg/identifier"
)

var installKeepOnError bool

var installCmd = &cobra.Command{
	Use:   "install <name[_version]>...",
	Short: "Resolve and install packages into the store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolVar(&installKeepOnError, "keep-on-error", false, "keep a failed install's staged extraction on disk instead of discarding it")
}

func parseSeeds(args []string) ([]identifier.Identifier, error) {
	seeds := make([]identifier.Identifier, 0, len(args))
	for _, a := range args {
		id, err := identifier.ParseQuery(a)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, id)
	}
	return seeds, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	seeds, err := parseSeeds(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	catalogue, _, err := eng.FetchRemotes(ctx, false)
	if err != nil {
		return wrapErr(ctx, err)
	}

	composed := composeEnvironment("", "")
	if err := eng.Install(ctx, seeds, catalogue, composed, installKeepOnError); err != nil {
		return wrapErr(ctx, err)
	}

	printResult(map[string]any{"installed": len(seeds)}, func() {
		fmt.Printf("installed %d package(s)\n", len(seeds))
	})
	return nil
}
