package cli

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <name[_version]>...",
	Short: "Preview the install plan for a set of seeds without installing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	plan, err := eng.InstallPlan(seeds, catalogue, composed)
	if err != nil {
		return err
	}

	printIdentifiers("install plan", plan)
	return nil
}
