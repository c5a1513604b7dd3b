package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stepwise",
	Short: "LLM-driven step orchestration with human-in-the-loop execution",
	Long: `Stepwise turns a natural-language request into an executable plan:
it decomposes the request into steps, generates code for each one, hands
that code to you for manual execution, validates what you report back,
and repairs failing steps until they pass or the attempt budget runs out.

Nothing is ever executed by stepwise itself. Every artifact crosses the
session boundary to a human (or agent) who runs it and reports the
outcome.

With no arguments, launches the executor client against the configured
server. Run "stepwise serve" first in another terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExec()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
