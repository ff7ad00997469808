package interactive

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/types"
	"gopkg.in/yaml.v3"
)

// PrintBanner shows the effective MCP and model settings. API keys are masked.
func PrintBanner(out io.Writer, styles Styles, cfg *config.Config, modelKey string, model config.ModelConfig) {
	red := cfg.Redacted()

	mcpYAML, err := yaml.Marshal(red.MCP)
	if err != nil {
		mcpYAML = []byte(fmt.Sprintf("error: %v\n", err))
	}
	masked := red.Models[modelKey]
	masked.EnableThinking = model.EnableThinking
	modelYAML, err := yaml.Marshal(masked)
	if err != nil {
		modelYAML = []byte(fmt.Sprintf("error: %v\n", err))
	}

	fmt.Fprintln(out, styles.Header.Render("=== MCP Agent Ready ==="))
	fmt.Fprintln(out, styles.Muted.Render("MCP configuration:"))
	fmt.Fprint(out, indent(string(mcpYAML)))
	fmt.Fprintln(out, styles.Muted.Render("LLM configuration ("+modelKey+"):"))
	fmt.Fprint(out, indent(string(modelYAML)))
	fmt.Fprintln(out, styles.Muted.Render("Type 'exit' or press Ctrl+C twice to quit"))
}

// PrintTools lists the tools offered to the model
func PrintTools(out io.Writer, styles Styles, tools []types.ToolDescriptor) {
	fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("Tool list (%d):", len(tools))))
	for _, tool := range tools {
		params, err := json.Marshal(tool.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(out, "Tool Name: %s\n", tool.Name)
		fmt.Fprintf(out, "Description: %s\n", tool.Description)
		fmt.Fprintf(out, "Parameter: %s\n", params)
		fmt.Fprintln(out, styles.Muted.Render(strings.Repeat("-", 29)))
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
