// Feature toggle/query commands (spec.md §4.10).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafpkg/leaf/pkg/env"
	"github.com/leafpkg/leaf/pkg/feature"
)

var featureCmd = &cobra.Command{
	Use:   "feature",
	Short: "Query or toggle feature keys exposed by installed packages",
}

func init() {
	rootCmd.AddCommand(featureCmd)
	featureCmd.AddCommand(featureToggleCmd, featureQueryCmd, featureListCmd)
}

var featureToggleCmd = &cobra.Command{
	Use:   "toggle <name> <enum>",
	Short: "Resolve a feature's enum value to its env key/value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, err := eng.Features.Toggle(args[0], args[1])
		if err != nil {
			return err
		}
		layer := env.NewLayer("feature:" + args[0])
		feature.Apply(&layer, resolved)
		for _, p := range layer.Pairs {
			fmt.Printf("%s=%s\n", p.Key, p.Value)
		}
		return nil
	},
}

var featureQueryCmd = &cobra.Command{
	Use:   "query <name>",
	Short: "Report a feature's currently active enum value in an environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		composed := composeEnvironment("", "")
		enum, matched, err := eng.Features.Query(args[0], composed)
		if err != nil {
			return err
		}
		printResult(map[string]any{"enum": enum, "matched": matched}, func() {
			if !matched {
				fmt.Println("no matching enum value")
				return
			}
			fmt.Println(enum)
		})
		return nil
	},
}

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature keys known across installed packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := eng.Features.Names()
		printResult(names, func() {
			for _, n := range names {
				fmt.Println(n)
			}
		})
		return nil
	},
}
