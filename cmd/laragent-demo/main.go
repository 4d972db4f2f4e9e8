// Package main provides a thin CLI that exercises a laragent Agent
// end-to-end: load a provider chain from a YAML/JSON5 config file, run an
// interactive chat loop against it, dispatching tool calls and streaming
// tokens back to the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "laragent-demo:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "laragent-demo",
		Short:        "Exercise a laragent Agent from the command line",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "laragent.yaml", "Path to YAML/JSON5 configuration file")

	rootCmd.AddCommand(buildChatCmd(), buildSendCmd())
	return rootCmd
}
