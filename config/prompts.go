package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompts holds the system prompts used for a conversation
type Prompts struct {
	// Tool is installed as the system message for the first round of each turn
	Tool string
	// Output replaces it for the rounds that follow tool use
	Output string
}

// LoadPrompts reads the prompt files, falling back to the inline system prompt.
// Relative paths resolve against the directory holding the config file.
func (c *Config) LoadPrompts() (Prompts, error) {
	p := Prompts{Tool: c.Prompts.SystemPrompt}

	if c.Prompts.ToolPromptPath != "" {
		text, err := c.readPrompt(c.Prompts.ToolPromptPath)
		if err != nil {
			return Prompts{}, err
		}
		p.Tool = text
	}

	p.Output = p.Tool
	if c.Prompts.OutputPromptPath != "" {
		text, err := c.readPrompt(c.Prompts.OutputPromptPath)
		if err != nil {
			return Prompts{}, err
		}
		p.Output = text
	}

	return p, nil
}

func (c *Config) readPrompt(path string) (string, error) {
	if !filepath.IsAbs(path) && c.path != "" {
		path = filepath.Join(filepath.Dir(c.path), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
