package main

import (
	"context"

	"github.com/aretw0/pageflow/internal/cli"
	"github.com/spf13/cobra"
)

var navigateCmd = &cobra.Command{
	Use:   "navigate <base-url> [path...]",
	Short: "Load a page and push navigations in a headless session",
	Long: `Loads base-url as the first document, then pushes every path in order and
prints the stages each navigation fired. Page scripts run in an embedded
JavaScript runtime and can hook stages with page.on(stage, fn).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("no-scripts") {
			cfg.Navigate.Scripts = false
		}
		if cmd.Flags().Changed("timeout") {
			cfg.Navigate.Timeout, _ = cmd.Flags().GetDuration("timeout")
		}
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		metrics, _ := cmd.Flags().GetBool("metrics")
		quiet, _ := cmd.Flags().GetBool("quiet")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		err = cli.RunNavigate(sigCtx, cli.NavigateOptions{
			Base:    args[0],
			Paths:   args[1:],
			Config:  cfg,
			Out:     cmd.OutOrStdout(),
			Mermaid: mermaid,
			Metrics: metrics,
			Quiet:   quiet,
		})
		if sigCtx.Signal() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(navigateCmd)
	navigateCmd.Flags().Bool("no-scripts", false, "Do not execute page scripts")
	navigateCmd.Flags().Duration("timeout", 0, "Abort the session after this long")
	navigateCmd.Flags().Bool("mermaid", false, "Print the whole trace as a Mermaid flowchart")
	navigateCmd.Flags().Bool("metrics", false, "Print the collected Prometheus metrics")
	navigateCmd.Flags().BoolP("quiet", "q", false, "Hide the banner")
	navigateCmd.Flags().String("redis-addr", "", "Redis address for --store redis")
}
