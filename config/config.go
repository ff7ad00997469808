// config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sammcj/mcpagent/types"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".config/mcpagent"
	defaultConfigFile = "config.yaml"

	// envPrefix marks an api_key value that names an environment variable
	envPrefix = "env:"

	// addressPlaceholder is replaced with the connected address in the seed message
	addressPlaceholder = "{address}"
)

// Supported MCP transports
const (
	TransportSSE        = "sse"
	TransportHTTPStream = "httpStream"
	TransportStdio      = "stdio"
)

// ModelConfig holds the endpoint settings for one selectable model
type ModelConfig struct {
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EnableThinking bool   `yaml:"enable_thinking"`
}

// RetryPolicy controls reconnect attempts against the tool server
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// MCPConfig holds configuration for the remote tool server
type MCPConfig struct {
	Transport string            `yaml:"transport"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Arguments []string          `yaml:"arguments,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Timeout   time.Duration     `yaml:"timeout"`
	Retry     RetryPolicy       `yaml:"retry"`
}

// Config holds the complete configuration for the agent
type Config struct {
	Models       map[string]ModelConfig `yaml:"models"`
	DefaultModel string                 `yaml:"default_model"`

	LLM struct {
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"llm"`

	MCP MCPConfig `yaml:"mcp"`

	Prompts struct {
		SystemPrompt     string `yaml:"system_prompt"`
		ToolPromptPath   string `yaml:"tool_prompt_path,omitempty"`
		OutputPromptPath string `yaml:"output_prompt_path,omitempty"`
	} `yaml:"prompts"`

	Conversation struct {
		ConnectAddress string `yaml:"connect_address"`
		SeedMessage    string `yaml:"seed_message"`
		MaxToolRounds  int    `yaml:"max_tool_rounds"`
	} `yaml:"conversation"`

	Signing struct {
		MockSuccess bool   `yaml:"mock_success"`
		MockTxHash  string `yaml:"mock_tx_hash"`
	} `yaml:"signing"`

	Tools struct {
		Parallel          bool `yaml:"parallel"`
		ValidateArguments bool `yaml:"validate_arguments"`
	} `yaml:"tools"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Debug bool `yaml:"debug"`

	path string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Models = map[string]ModelConfig{
		"qwen3:8b": {
			Model:   "Qwen/Qwen3-8B",
			APIKey:  envPrefix + "OPENAI_API_KEY",
			BaseURL: "https://api.openai.com/v1",
		},
		"openai/gpt-4o-2024-11-20": {
			Model:   "openai/gpt-4o-2024-11-20",
			APIKey:  envPrefix + "OPENROUTER_API_KEY",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		"anthropic/claude-sonnet-4": {
			Model:   "anthropic/claude-sonnet-4",
			APIKey:  envPrefix + "OPENROUTER_API_KEY",
			BaseURL: "https://openrouter.ai/api/v1",
		},
	}
	cfg.DefaultModel = "qwen3:8b"

	// LLM defaults
	cfg.LLM.Timeout = 5 * time.Minute
	cfg.LLM.MaxRetries = 2

	// MCP defaults
	cfg.MCP.Transport = TransportSSE
	cfg.MCP.URL = "http://localhost:18133/sse"
	cfg.MCP.Timeout = 30 * time.Second
	cfg.MCP.Retry = RetryPolicy{
		MaxRetries:     3,
		BackoffFactor:  2,
		InitialBackoff: time.Second,
	}

	cfg.Prompts.SystemPrompt = `You are an on-chain assistant with access to remote tools.

[Tools]
1. Call tools whenever the user's request needs live data or an action
2. Use connectAddress as the sender unless the user names another address
3. When a transaction result is reported, summarise it for the user`

	cfg.Conversation.ConnectAddress = "0xF5054F94009B7E9999F6459f40d8EaB1A2ceA22D"
	cfg.Conversation.SeedMessage = "connectAddress is a global variable. This variable represents the user's address " +
		"and the transaction sending address, and it may also become the transaction to address or other parameters. " +
		"connectAddress: " + addressPlaceholder
	cfg.Conversation.MaxToolRounds = 16

	cfg.Signing.MockSuccess = true
	cfg.Signing.MockTxHash = "0xd9c51fc233d947de75157a1fec9a516a7e48489427c41b976355b66a2da5fca1"

	cfg.Tools.Parallel = false
	cfg.Tools.ValidateArguments = true

	cfg.Logging.Level = "info"

	return cfg
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, defaultConfigDir)
	return filepath.Join(configDir, defaultConfigFile), nil
}

// LoadOrCreate loads the config file if it exists, or creates a default one if it doesn't
func LoadOrCreate() (*Config, bool, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, false, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.path = configPath
		if err := cfg.Save(); err != nil {
			return nil, false, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := Load(configPath)
	return cfg, false, err
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with default config to ensure all fields have values
	cfg := DefaultConfig()
	defaults := cfg.Models

	// A models section in the file replaces the defaults rather than merging into them
	cfg.Models = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &types.ConfigError{Field: path, Message: "failed to parse config file", Err: err}
	}
	if len(cfg.Models) == 0 {
		cfg.Models = defaults
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Path returns the file the configuration was loaded from, if any
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration to disk
func (c *Config) Save() error {
	configPath := c.path
	if configPath == "" {
		var err error
		configPath, err = GetConfigPath()
		if err != nil {
			return err
		}
		c.path = configPath
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that required fields are present and valid
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return &types.ConfigError{Field: "models", Message: "at least one model is required"}
	}
	if _, ok := c.Models[c.DefaultModel]; !ok {
		return &types.ConfigError{Field: "default_model", Message: fmt.Sprintf("unknown model key %q", c.DefaultModel)}
	}
	for key, m := range c.Models {
		if m.Model == "" {
			return &types.ConfigError{Field: "models." + key + ".model", Message: "is required"}
		}
		if m.BaseURL == "" {
			return &types.ConfigError{Field: "models." + key + ".base_url", Message: "is required"}
		}
	}

	if c.LLM.Timeout <= 0 {
		return &types.ConfigError{Field: "llm.timeout", Message: "must be positive"}
	}
	if c.LLM.MaxRetries < 0 {
		return &types.ConfigError{Field: "llm.max_retries", Message: "must not be negative"}
	}

	switch c.MCP.Transport {
	case TransportSSE, TransportHTTPStream:
		if c.MCP.URL == "" {
			return &types.ConfigError{Field: "mcp.url", Message: "is required for transport " + c.MCP.Transport}
		}
	case TransportStdio:
		if c.MCP.Command == "" {
			return &types.ConfigError{Field: "mcp.command", Message: "is required for transport stdio"}
		}
	default:
		return &types.ConfigError{Field: "mcp.transport", Message: fmt.Sprintf("unsupported transport %q", c.MCP.Transport)}
	}
	if c.MCP.Timeout <= 0 {
		return &types.ConfigError{Field: "mcp.timeout", Message: "must be positive"}
	}
	if c.MCP.Retry.MaxRetries < 0 {
		return &types.ConfigError{Field: "mcp.retry.max_retries", Message: "must not be negative"}
	}
	if c.MCP.Retry.BackoffFactor < 1 {
		return &types.ConfigError{Field: "mcp.retry.backoff_factor", Message: "must be at least 1"}
	}

	if c.Conversation.MaxToolRounds <= 0 {
		return &types.ConfigError{Field: "conversation.max_tool_rounds", Message: "must be positive"}
	}
	if c.Signing.MockTxHash == "" {
		return &types.ConfigError{Field: "signing.mock_tx_hash", Message: "is required"}
	}

	return nil
}

// ResolveModel returns the model settings for key, falling back to the
// default model when key is empty. Env-backed API keys are expanded.
func (c *Config) ResolveModel(key string) (string, ModelConfig, error) {
	if key == "" {
		key = c.DefaultModel
	}
	m, ok := c.Models[key]
	if !ok {
		return "", ModelConfig{}, &types.ConfigError{
			Field:   "models",
			Message: fmt.Sprintf("unknown model key %q (available: %s)", key, strings.Join(c.ModelKeys(), ", ")),
		}
	}
	if name, found := strings.CutPrefix(m.APIKey, envPrefix); found {
		m.APIKey = os.Getenv(name)
		if m.APIKey == "" {
			return "", ModelConfig{}, &types.ConfigError{
				Field:   "models." + key + ".api_key",
				Message: fmt.Sprintf("environment variable %s is not set", name),
			}
		}
	}
	return key, m, nil
}

// ModelKeys returns the configured model keys in sorted order
func (c *Config) ModelKeys() []string {
	keys := make([]string, 0, len(c.Models))
	for k := range c.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SeedMessage returns the first user message with the connected address filled in
func (c *Config) SeedMessage() string {
	return strings.ReplaceAll(c.Conversation.SeedMessage, addressPlaceholder, c.Conversation.ConnectAddress)
}

// Redacted returns a copy safe for printing, with literal API keys masked
func (c *Config) Redacted() *Config {
	out := *c
	out.Models = make(map[string]ModelConfig, len(c.Models))
	for k, m := range c.Models {
		m.APIKey = maskKey(m.APIKey)
		out.Models[k] = m
	}
	return &out
}

func maskKey(key string) string {
	if key == "" || strings.HasPrefix(key, envPrefix) {
		return key
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
