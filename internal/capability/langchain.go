package capability

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainConfig configures a langchaingo-backed text model. It covers
// OpenAI-compatible endpoints and Google Gemini.
type LangChainConfig struct {
	// Kind is "openai" or "googleai".
	Kind string
	// Model is the model identifier for the backend.
	Model string
	// APIKey is the backend API key.
	APIKey string
	// BaseURL overrides the endpoint for OpenAI-compatible providers
	// such as OpenRouter.
	BaseURL string
}

// LangChainModel is a TextModel backed by a langchaingo llms.Model.
type LangChainModel struct {
	model llms.Model
}

// NewLangChainModel constructs the backend selected by cfg.Kind.
func NewLangChainModel(ctx context.Context, cfg LangChainConfig) (*LangChainModel, error) {
	switch cfg.Kind {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return &LangChainModel{model: model}, nil

	case "googleai":
		opts := []googleai.Option{
			googleai.WithAPIKey(cfg.APIKey),
		}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		model, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create googleai model: %w", err)
		}
		return &LangChainModel{model: model}, nil

	default:
		return nil, fmt.Errorf("unknown langchain provider kind %q", cfg.Kind)
	}
}

// WrapModel adapts an existing llms.Model. Useful for tests.
func WrapModel(model llms.Model) *LangChainModel {
	return &LangChainModel{model: model}
}

// Generate executes a prompt and returns the text response.
func (m *LangChainModel) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.model, prompt)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	return response, nil
}
