package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "supervisord",
		Short: "Supervises locally-installed MCP server subprocesses",
		Long: `supervisord installs, runs, and health-checks MCP servers on a single
host: it clones/pulls server sources, tracks installation progress, and
keeps the resulting processes alive with restart backoff and health
probing.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a supervisord config YAML file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(serverCmd)
}
