// Workspace/profile commands (spec.md §4.8). Grounded on the same
// cobra.Command + RunE shape as install.go/uninstall.go, with an added
// --workspace flag since these operate on a workspace directory rather
// than the engine's global store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leafpkg/leaf/pkg/installer"
	"github.com/leafpkg/leaf/pkg/workspace"
)

var workspaceRoot string

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspace profiles",
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", os.Getenv("LEAF_WORKSPACE"), "workspace root directory (default $LEAF_WORKSPACE)")

	workspaceCmd.AddCommand(
		wsCreateProfileCmd,
		wsUpdateProfileCmd,
		wsDeleteProfileCmd,
		wsSwitchProfileCmd,
		wsSyncProfileCmd,
		wsProfileEnvCmd,
		wsListProfilesCmd,
	)
}

func requireWorkspaceRoot() (string, error) {
	if workspaceRoot == "" {
		return "", errWorkspaceUnset
	}
	return workspaceRoot, nil
}

var wsCreateProfileCmd = &cobra.Command{
	Use:   "create-profile <name>",
	Short: "Create a new empty profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		if err := w.CreateProfile(args[0]); err != nil {
			return err
		}
		return w.Save()
	},
}

var (
	wsAddPackages    []string
	wsRemovePackages []string
	wsSetEnv         map[string]string
)

var wsUpdateProfileCmd = &cobra.Command{
	Use:   "update-profile <name>",
	Short: "Add/remove packages or environment variables on a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		if err := w.UpdateProfile(args[0], wsAddPackages, wsRemovePackages, wsSetEnv); err != nil {
			return err
		}
		return w.Save()
	},
}

var wsDeleteProfileCmd = &cobra.Command{
	Use:   "delete-profile <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		if err := w.DeleteProfile(args[0]); err != nil {
			return err
		}
		return w.Save()
	},
}

var wsSwitchProfileCmd = &cobra.Command{
	Use:   "switch-profile <name>",
	Short: "Point the workspace's current profile symlink at name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		return w.Switch(args[0])
	},
}

var wsSyncProfileCmd = &cobra.Command{
	Use:   "sync-profile <name>",
	Short: "Resolve and install a profile's packages, rebuilding its symlinks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		catalogue, _, err := eng.FetchRemotes(ctx, false)
		if err != nil {
			return wrapErr(ctx, err)
		}
		installed, err := eng.ListInstalled()
		if err != nil {
			return err
		}
		composed := composeEnvironment(root, args[0])

		resolved, err := w.Sync(ctx, args[0], installer.Catalogue(catalogue), eng.Installer, eng.StoreRoot, installed, composed)
		if err != nil {
			return wrapErr(ctx, err)
		}

		if err := workspace.WriteActivationScripts(w.ProfileDir(args[0]), composed); err != nil {
			return err
		}

		printIdentifiers("synced profile "+args[0], resolved)
		return nil
	},
}

var wsProfileEnvCmd = &cobra.Command{
	Use:   "profile-env <name>",
	Short: "Print an activation script for a profile's composed environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		profileLayer, err := w.ProfileEnvLayer(args[0])
		if err != nil {
			return err
		}
		composed := composeEnvironment(root, args[0])
		composed.Layers = append(composed.Layers, w.EnvLayer(), profileLayer)
		return composed.EmitActivate(os.Stdout)
	},
}

var wsListProfilesCmd = &cobra.Command{
	Use:   "list-profiles",
	Short: "List the profiles defined in a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := requireWorkspaceRoot()
		if err != nil {
			return err
		}
		w, err := workspace.Load(root)
		if err != nil {
			return err
		}
		names := w.ProfileNames()
		printResult(names, func() {
			if len(names) == 0 {
				fmt.Println("no profiles defined")
				return
			}
			current, _ := w.CurrentProfile()
			for _, n := range names {
				marker := "  "
				if n == current {
					marker = "* "
				}
				fmt.Printf("%s%s\n", marker, n)
			}
		})
		return nil
	},
}

func init() {
	wsUpdateProfileCmd.Flags().StringSliceVar(&wsAddPackages, "add", nil, "package query to add (repeatable)")
	wsUpdateProfileCmd.Flags().StringSliceVar(&wsRemovePackages, "remove", nil, "package name to remove (repeatable)")
	wsUpdateProfileCmd.Flags().StringToStringVar(&wsSetEnv, "env", nil, "KEY=VALUE env override to set (empty VALUE deletes); repeatable")
}
