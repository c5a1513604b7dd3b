package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jfelder/stepwise/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display resolved configuration",
	Long: `Prints the configuration the server would run with, after merging
defaults, the config file, and STEPWISE_* environment variables.

Configuration is read from ~/.config/stepwise/config.yaml, with
project-local overrides in .stepwise.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		displayConfig(cfg)
		return nil
	},
}

func displayConfig(cfg *config.Config) {
	apiKey := "(not set)"
	if key, err := config.GetAPIKey(cfg); err == nil {
		apiKey = config.MaskKey(key)
	}

	fmt.Printf("provider.kind: %s\n", cfg.Provider.Kind)
	fmt.Printf("provider.model: %s\n", cfg.Provider.Model)
	fmt.Printf("provider.api_key: %s\n", apiKey)
	fmt.Printf("provider.use_bedrock: %t\n", cfg.Provider.UseBedrock)
	fmt.Printf("provider.retry_attempts: %d\n", cfg.Provider.RetryAttempts)
	fmt.Printf("orchestrator.max_attempts: %d\n", cfg.Orchestrator.MaxAttempts)
	fmt.Printf("orchestrator.dispatch_timeout: %s\n", cfg.Orchestrator.DispatchTimeout)
	fmt.Printf("orchestrator.max_concurrent_plans: %d\n", cfg.Orchestrator.MaxConcurrentPlans)
	fmt.Printf("orchestrator.semantic_validation: %t\n", cfg.Orchestrator.SemanticValidation)
	fmt.Printf("server.host: %s\n", cfg.Server.Host)
	fmt.Printf("server.port: %d\n", cfg.Server.Port)
	fmt.Printf("logging.level: %s\n", cfg.Logging.Level)
	fmt.Printf("logging.format: %s\n", cfg.Logging.Format)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
}
