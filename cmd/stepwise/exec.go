package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfelder/stepwise/internal/tui"
)

var execURL string

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Launch the executor client",
	Long: `Connects to a running server and opens the executor interface.
Type a request, watch the plan unfold, and run each dispatched piece of
code by hand, reporting the result back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExec()
	},
}

func init() {
	execCmd.Flags().StringVar(&execURL, "url", "", "Session endpoint (defaults to the configured server)")
}

func runExec() error {
	url := execURL
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url = fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)
	}
	return tui.Run(url)
}
