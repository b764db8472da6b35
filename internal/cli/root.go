// Package cli provides leaf's command-line interface: a thin cobra
// command tree that parses flags, builds an *engine.Engine, calls one of
// its operations, and renders the result (spec.md §6/§9).
//
// Grounded on legacy/seeder/internal/cli/root.go's PersistentPreRunE
// logger construction and cobra.OnInitialize(initConfig) viper wiring,
// and legacy/seeder/internal/config's mapstructure-tagged config struct.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leafpkg/leaf/pkg/engine"
	"github.com/leafpkg/leaf/pkg/logging"
)

var (
	cfgFile          string
	configRoot       string
	cacheRoot        string
	storeRoot        string
	verifySignatures bool
	verboseSteps     bool
	jsonOutput       bool

	logger *zap.Logger
	eng    *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "leaf",
	Short: "leaf - developer toolchain package manager",
	Long: `leaf manages versioned developer toolchains: fetching package
indexes from remotes, resolving dependencies, installing content-addressed
packages into a store, and composing per-workspace environments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		eng, err = engine.New(engine.Config{
			ConfigRoot:       viper.GetString("config_root"),
			CacheRoot:        viper.GetString("cache_root"),
			StoreRoot:        viper.GetString("store_root"),
			VerifySignatures: viper.GetBool("verify_signatures"),
			Verbose:          viper.GetBool("verbose_steps"),
			Logger:           logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize engine: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the command tree. It is called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default none; LEAF_* env vars apply)")
	rootCmd.PersistentFlags().StringVar(&configRoot, "config-root", "", "override leaf's config root (default $LEAF_CONFIG or ~/.config/leaf)")
	rootCmd.PersistentFlags().StringVar(&cacheRoot, "cache-root", "", "override leaf's cache root (default $LEAF_CACHE or ~/.cache/leaf)")
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store-root", "", "override leaf's package store root")
	rootCmd.PersistentFlags().BoolVar(&verifySignatures, "verify-signatures", false, "require GPG signature verification on installed artifacts")
	rootCmd.PersistentFlags().BoolVar(&verboseSteps, "verbose-steps", false, "stream install/uninstall/sync step output instead of buffering it")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "render command output as JSON")

	_ = viper.BindPFlag("config_root", rootCmd.PersistentFlags().Lookup("config-root"))
	_ = viper.BindPFlag("cache_root", rootCmd.PersistentFlags().Lookup("cache-root"))
	_ = viper.BindPFlag("store_root", rootCmd.PersistentFlags().Lookup("store-root"))
	_ = viper.BindPFlag("verify_signatures", rootCmd.PersistentFlags().Lookup("verify-signatures"))
	_ = viper.BindPFlag("verbose_steps", rootCmd.PersistentFlags().Lookup("verbose-steps"))
	_ = viper.BindPFlag("json_output", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to read config file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("LEAF")
	viper.AutomaticEnv()
}
