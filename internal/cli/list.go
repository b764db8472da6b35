package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	installed, err := eng.ListInstalled()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(installed))
	for k := range installed {
		names = append(names, k)
	}
	sort.Strings(names)

	printResult(names, func() {
		if len(names) == 0 {
			fmt.Println("no packages installed")
			return
		}
		for _, n := range names {
			ip := installed[n]
			fmt.Printf("%s\t%s\n", n, ip.Manifest.Description)
		}
	})
	return nil
}
