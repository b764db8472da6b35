// Releng commands (spec.md §4.9): create-package, generate-manifest,
// generate-index. These do not touch the engine's store, only pkg/releng:
// PersistentPreRunE still constructs the engine for them, and they simply
// ignore eng.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafpkg/leaf/pkg/releng"
)

var relengCmd = &cobra.Command{
	Use:   "releng",
	Short: "Build packages and indexes for distribution",
}

func init() {
	rootCmd.AddCommand(relengCmd)
	relengCmd.AddCommand(createPackageCmd, generateManifestCmd, generateIndexCmd)
}

var (
	cpFolder         string
	cpOutput         string
	cpExtraTarArgs   []string
	cpForceRootOwner bool
	cpStoreInfo      bool
)

var createPackageCmd = &cobra.Command{
	Use:   "create-package",
	Short: "Package a manifest'd folder into a reproducible archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := releng.CreatePackage(releng.CreatePackageOptions{
			Folder:         cpFolder,
			Output:         cpOutput,
			ExtraTarArgs:   cpExtraTarArgs,
			ForceRootOwner: cpForceRootOwner,
			StoreInfo:      cpStoreInfo,
		}); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", cpOutput)
		return nil
	},
}

var (
	gmOutput     string
	gmFragments  []string
	gmName       string
	gmVersion    string
	gmDesc       string
	gmResolveEnv bool
)

var generateManifestCmd = &cobra.Command{
	Use:   "generate-manifest",
	Short: "Merge manifest fragments into a validated manifest.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := releng.GenerateManifest(releng.GenerateManifestOptions{
			Output:     gmOutput,
			Fragments:  gmFragments,
			ResolveEnv: gmResolveEnv,
			Info: releng.ManifestInfoOverlay{
				Name:        gmName,
				Version:     gmVersion,
				Description: gmDesc,
			},
		}); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", gmOutput)
		return nil
	},
}

var (
	giOutput          string
	giArtifacts       []string
	giName            string
	giDesc            string
	giUseExternalInfo bool
	giPretty          bool
)

var generateIndexCmd = &cobra.Command{
	Use:   "generate-index",
	Short: "Build an index.json referencing a set of packaged artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := releng.GenerateIndex(releng.GenerateIndexOptions{
			Output:          giOutput,
			Artifacts:       giArtifacts,
			Name:            giName,
			Description:     giDesc,
			UseExternalInfo: giUseExternalInfo,
			Pretty:          giPretty,
		}); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", giOutput)
		return nil
	},
}

func init() {
	createPackageCmd.Flags().StringVar(&cpFolder, "folder", "", "folder containing manifest.json to package (required)")
	createPackageCmd.Flags().StringVar(&cpOutput, "output", "", "output archive path (required)")
	createPackageCmd.Flags().StringSliceVar(&cpExtraTarArgs, "tar-arg", nil, "extra tar argument (repeatable; forbidden set rejected)")
	createPackageCmd.Flags().BoolVar(&cpForceRootOwner, "force-root-owner", false, "force uid/gid 0 on archive members for reproducibility")
	createPackageCmd.Flags().BoolVar(&cpStoreInfo, "store-info", false, "write an <output>.info sidecar for generate-index")
	_ = createPackageCmd.MarkFlagRequired("folder")
	_ = createPackageCmd.MarkFlagRequired("output")

	generateManifestCmd.Flags().StringVar(&gmOutput, "output", "", "output manifest.json path (required)")
	generateManifestCmd.Flags().StringSliceVar(&gmFragments, "fragment", nil, "manifest fragment JSON file (repeatable, merged in order)")
	generateManifestCmd.Flags().StringVar(&gmName, "name", "", "overlay: package name")
	generateManifestCmd.Flags().StringVar(&gmVersion, "version", "", "overlay: package version")
	generateManifestCmd.Flags().StringVar(&gmDesc, "description", "", "overlay: package description")
	generateManifestCmd.Flags().BoolVar(&gmResolveEnv, "resolve-env", false, "resolve #{VAR} references against the process environment")
	_ = generateManifestCmd.MarkFlagRequired("output")

	generateIndexCmd.Flags().StringVar(&giOutput, "output", "", "output index.json path (required)")
	generateIndexCmd.Flags().StringSliceVar(&giArtifacts, "artifact", nil, "packaged archive to reference (repeatable)")
	generateIndexCmd.Flags().StringVar(&giName, "name", "", "index name")
	generateIndexCmd.Flags().StringVar(&giDesc, "description", "", "index description")
	generateIndexCmd.Flags().BoolVar(&giUseExternalInfo, "use-external-info", true, "prefer an artifact's .info sidecar over reading the archive directly")
	generateIndexCmd.Flags().BoolVar(&giPretty, "pretty", true, "pretty-print the generated index.json")
	_ = generateIndexCmd.MarkFlagRequired("output")
}
