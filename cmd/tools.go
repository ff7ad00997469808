package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sammcj/mcpagent/bridge"
	"github.com/sammcj/mcpagent/interactive"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools [model-key]",
	Short: "List the tools offered by the MCP server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	_, model, err := resolveModel(cmd, cfg, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := interactive.DefaultStyles(out)
	b, err := bridge.Connect(context.Background(), cfg, model, interactive.NewConsoleRenderer(out, styles), logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()

	interactive.PrintTools(out, styles, b.Tools())
	return nil
}
