package main

import (
	"context"

	"github.com/aretw0/pageflow/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve a directory of HTML pages",
	Long: `Starts a fixture server for a directory of pages: /about resolves to
about.html or about/index.html, /metrics exposes Prometheus metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Serve.Dir = args[0]
		}
		if cmd.Flags().Changed("addr") {
			cfg.Serve.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("no-metrics") {
			cfg.Serve.Metrics = false
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return cli.RunServe(sigCtx, cli.ServeOptions{Config: cfg, Out: cmd.OutOrStdout()})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("no-metrics", false, "Do not expose /metrics")
}
