package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jfelder/stepwise/internal/capability"
	"github.com/jfelder/stepwise/internal/config"
	"github.com/jfelder/stepwise/internal/logging"
	"github.com/jfelder/stepwise/internal/server"
	"github.com/jfelder/stepwise/internal/state"
)

var serveNoArchive bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration server",
	Long: `Starts the HTTP server hosting websocket sessions and the run
archive API. Executor clients connect with "stepwise exec" or any
client speaking the session protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoArchive, "no-archive", false, "Disable run persistence")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	caps, err := buildCapabilities(context.Background(), cfg)
	if err != nil {
		return err
	}

	var archive *state.DB
	if !serveNoArchive {
		archive, err = state.Open(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open run archive: %w", err)
		}
		defer archive.Close()
		if err := archive.Migrate(); err != nil {
			return fmt.Errorf("migrate run archive: %w", err)
		}
	}

	srv, err := server.New(caps, archive, cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// buildCapabilities wires the configured provider backend into the set
// of ports the orchestration engine consumes.
func buildCapabilities(ctx context.Context, cfg *config.Config) (capability.Set, error) {
	prompts := capability.DefaultPrompts()
	if cfg.Provider.PromptsFile != "" {
		var err error
		prompts, err = capability.LoadPrompts(cfg.Provider.PromptsFile)
		if err != nil {
			return capability.Set{}, fmt.Errorf("load prompts: %w", err)
		}
	}

	var model capability.TextModel
	switch cfg.Provider.Kind {
	case "anthropic", "":
		m, err := capability.NewAnthropicModel(capability.AnthropicConfig{
			Model:      anthropic.Model(cfg.Provider.Model),
			APIKey:     cfg.Provider.APIKey,
			UseBedrock: cfg.Provider.UseBedrock,
			AWSRegion:  cfg.Provider.AWSRegion,
			AWSProfile: cfg.Provider.AWSProfile,
		})
		if err != nil {
			return capability.Set{}, fmt.Errorf("init anthropic backend: %w", err)
		}
		model = m

	case "openai", "googleai":
		apiKey, err := config.GetAPIKey(cfg)
		if err != nil {
			return capability.Set{}, err
		}
		m, err := capability.NewLangChainModel(ctx, capability.LangChainConfig{
			Kind:    cfg.Provider.Kind,
			Model:   cfg.Provider.Model,
			APIKey:  apiKey,
			BaseURL: cfg.Provider.BaseURL,
		})
		if err != nil {
			return capability.Set{}, fmt.Errorf("init %s backend: %w", cfg.Provider.Kind, err)
		}
		model = m

	default:
		return capability.Set{}, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}

	if cfg.Provider.RetryAttempts > 1 {
		model = capability.NewRetryModel(model, cfg.Provider.RetryAttempts, time.Second)
	}

	provider := capability.NewLLMProvider(model, prompts)
	return capability.Set{
		Planner:    provider,
		Coder:      provider,
		Debugger:   provider,
		Summarizer: provider,
		Validator:  provider,
	}, nil
}
