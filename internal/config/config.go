// Package config handles configuration loading and management for stepwise.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for stepwise.
type Config struct {
	Provider     ProviderConfig     `mapstructure:"provider"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	State        StateConfig        `mapstructure:"state"`
}

// ProviderConfig holds capability provider settings.
type ProviderConfig struct {
	// Kind selects the provider backend: anthropic, openai, or googleai.
	Kind string `mapstructure:"kind"`
	// Model is the model identifier for the selected backend.
	Model string `mapstructure:"model"`
	// APIKey is the provider API key. Environment variables are preferred.
	APIKey string `mapstructure:"api_key"`
	// BaseURL overrides the endpoint for OpenAI-compatible backends.
	BaseURL string `mapstructure:"base_url"`
	// UseBedrock routes Anthropic calls through AWS Bedrock.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile for Bedrock.
	AWSProfile string `mapstructure:"aws_profile"`
	// RetryAttempts is the adapter-level retry ceiling for transient
	// provider failures. The orchestration core does not retry.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// PromptsFile points at a YAML file of prompt template overrides.
	PromptsFile string `mapstructure:"prompts_file"`
}

// OrchestratorConfig holds the knobs consumed by the orchestration core.
type OrchestratorConfig struct {
	// MaxAttempts is the per-step debug retry ceiling.
	MaxAttempts int `mapstructure:"max_attempts"`
	// DispatchTimeout bounds the wait for an externally reported outcome.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	// MaxConcurrentPlans bounds simultaneously active plans across sessions.
	MaxConcurrentPlans int `mapstructure:"max_concurrent_plans"`
	// SemanticValidation enables LLM validation of reported outputs
	// against each step's validation rule.
	SemanticValidation bool `mapstructure:"semantic_validation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format"`
}

// StateConfig holds run archive settings.
type StateConfig struct {
	// Path is the SQLite database path. Empty means the XDG data dir.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (STEPWISE_*, provider API keys)
// 2. Project config (.stepwise.yaml in current directory or parent)
// 3. User config (~/.config/stepwise/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("STEPWISE")
	v.AutomaticEnv()

	// Provider keys come from their conventional environment variables.
	v.BindEnv("provider.api_key", "STEPWISE_API_KEY")
	v.BindEnv("provider.kind", "STEPWISE_PROVIDER")
	v.BindEnv("provider.model", "STEPWISE_MODEL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Provider.APIKey = expandEnv(cfg.Provider.APIKey)

	// An empty archive path would hand SQLite a private temp database.
	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath()
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = expandEnv(cfg.Provider.APIKey)

	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath()
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultStatePath returns the default run archive location.
func DefaultStatePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "stepwise", "stepwise.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.kind", "anthropic")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.retry_attempts", 3)

	v.SetDefault("orchestrator.max_attempts", 3)
	v.SetDefault("orchestrator.dispatch_timeout", "10m")
	v.SetDefault("orchestrator.max_concurrent_plans", 4)
	v.SetDefault("orchestrator.semantic_validation", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory for stepwise.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stepwise")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "stepwise")
	}
	return filepath.Join(home, ".config", "stepwise")
}

// findProjectConfig searches for .stepwise.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".stepwise.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Kind:          "anthropic",
			RetryAttempts: 3,
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts:        3,
			DispatchTimeout:    10 * time.Minute,
			MaxConcurrentPlans: 4,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		State: StateConfig{
			Path: DefaultStatePath(),
		},
	}
}
