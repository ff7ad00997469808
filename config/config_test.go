package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sammcj/mcpagent/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOrCreateWritesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, created, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if !created {
		t.Fatalf("expected config to be created")
	}
	want := filepath.Join(home, ".config", "mcpagent", "config.yaml")
	if cfg.Path() != want {
		t.Fatalf("Path() = %q, want %q", cfg.Path(), want)
	}

	again, created, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate: %v", err)
	}
	if created {
		t.Fatalf("expected existing config to be loaded")
	}
	if again.MCP.Timeout != 30*time.Second {
		t.Fatalf("timeout round trip = %v", again.MCP.Timeout)
	}
	if again.MCP.Retry.MaxRetries != 3 || again.MCP.Retry.BackoffFactor != 2 {
		t.Fatalf("retry policy round trip = %+v", again.MCP.Retry)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
models:
  local:
    model: qwen3
    api_key: sk-local-123456789
    base_url: http://localhost:8000/v1
    enable_thinking: true
default_model: local
mcp:
  transport: httpStream
  url: http://localhost:9000/mcp
  timeout: 5s
signing:
  mock_success: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("expected file models to replace defaults, got %v", cfg.ModelKeys())
	}
	if cfg.MCP.Transport != TransportHTTPStream || cfg.MCP.Timeout != 5*time.Second {
		t.Fatalf("mcp = %+v", cfg.MCP)
	}
	if cfg.Signing.MockSuccess {
		t.Fatalf("expected mock_success false")
	}
	if !cfg.Tools.ValidateArguments {
		t.Fatalf("unset fields should keep defaults")
	}

	key, m, err := cfg.ResolveModel("")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if key != "local" || !m.EnableThinking || m.APIKey != "sk-local-123456789" {
		t.Fatalf("ResolveModel = %q %+v", key, m)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown transport", "mcp:\n  transport: websocket\n", "mcp.transport"},
		{"missing url", "mcp:\n  transport: sse\n  url: \"\"\n", "mcp.url"},
		{"stdio without command", "mcp:\n  transport: stdio\n", "mcp.command"},
		{"unknown default model", "default_model: nope\n", "default_model"},
		{"zero rounds", "conversation:\n  max_tool_rounds: 0\n", "conversation.max_tool_rounds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Fatalf("expected field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestResolveModelFromEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models["router"] = ModelConfig{Model: "m", APIKey: "env:TEST_ROUTER_KEY", BaseURL: "http://x"}

	if _, _, err := cfg.ResolveModel("router"); err == nil {
		t.Fatalf("expected error for unset env var")
	}

	t.Setenv("TEST_ROUTER_KEY", "secret")
	_, m, err := cfg.ResolveModel("router")
	if err != nil {
		t.Fatalf("ResolveModel: %v", err)
	}
	if m.APIKey != "secret" {
		t.Fatalf("APIKey = %q", m.APIKey)
	}

	if _, _, err := cfg.ResolveModel("missing"); !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected config error for unknown key, got %v", err)
	}
}

func TestSeedMessageAndRedaction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conversation.ConnectAddress = "0xabc"
	if !strings.HasSuffix(cfg.SeedMessage(), "connectAddress: 0xabc") {
		t.Fatalf("SeedMessage() = %q", cfg.SeedMessage())
	}

	cfg.Models["literal"] = ModelConfig{Model: "m", APIKey: "sk-1234567890abcd", BaseURL: "http://x"}
	red := cfg.Redacted()
	if got := red.Models["literal"].APIKey; got != "sk-1****abcd" {
		t.Fatalf("masked key = %q", got)
	}
	if cfg.Models["literal"].APIKey != "sk-1234567890abcd" {
		t.Fatalf("Redacted must not modify the original")
	}
	if got := red.Models["qwen3:8b"].APIKey; got != "env:OPENAI_API_KEY" {
		t.Fatalf("env reference should be shown as-is, got %q", got)
	}
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tool.md"), []byte("use tools\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "output.md"), []byte("summarise"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.path = filepath.Join(dir, "config.yaml")
	cfg.Prompts.ToolPromptPath = "tool.md"

	p, err := cfg.LoadPrompts()
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if p.Tool != "use tools" || p.Output != "use tools" {
		t.Fatalf("prompts = %+v", p)
	}

	cfg.Prompts.OutputPromptPath = filepath.Join(dir, "output.md")
	p, err = cfg.LoadPrompts()
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if p.Output != "summarise" {
		t.Fatalf("output prompt = %q", p.Output)
	}

	cfg.Prompts.ToolPromptPath = "missing.md"
	if _, err := cfg.LoadPrompts(); err == nil {
		t.Fatalf("expected error for missing prompt file")
	}
}
