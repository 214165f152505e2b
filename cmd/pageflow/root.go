package main

import (
	"fmt"
	"os"

	"github.com/aretw0/pageflow/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pageflow",
	Short: "Pageflow drives HTML documents through client-side navigations",
	Long: `Pageflow runs the page lifecycle (init, ready, build, patch, setup, hash)
against real documents: it merges routed pages into a live document, runs
their scripts and keeps a navigation history.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default: pageflow.yaml|yml|json|toml in the working directory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("store", "", "History store: memory, file or redis")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Kind, _ = cmd.Flags().GetString("store")
	}
	if f := cmd.Flags().Lookup("redis-addr"); f != nil && f.Changed {
		cfg.Store.RedisAddr = f.Value.String()
	}
	return cfg, cfg.Validate()
}
