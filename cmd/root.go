package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sammcj/mcpagent/bridge"
	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/interactive"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	debugDump     bool
	thinking      bool
	transportName string
	serverURL     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.config/mcpagent/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugDump, "debug", false, "Log debug output including raw LLM requests")
	rootCmd.PersistentFlags().BoolVar(&thinking, "thinking", false, "Ask the model to emit its reasoning")
	rootCmd.PersistentFlags().StringVar(&transportName, "transport", "", "MCP transport: sse, httpStream or stdio")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "MCP server URL")
}

var rootCmd = &cobra.Command{
	Use:   "mcpagent [model-key]",
	Short: "Chat with an LLM that can call tools on an MCP server",
	Long: `mcpagent connects to an MCP tool server and starts an interactive chat.
Tool calls requested by the model are run against the server and their
results are fed back until the model answers.

Examples:
  mcpagent                              # chat with the default model
  mcpagent openai/gpt-4o-2024-11-20     # chat with a configured model
  mcpagent --transport httpStream --url http://localhost:18133/mcp

  mcpagent tools                        # list the server's tools
  mcpagent config                       # show configuration`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	RunE:              runChat,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *log.Logger {
	session := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return log.New(w, "[mcpagent "+session+"] ", log.LstdFlags)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(logger *log.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		var created bool
		cfg, created, err = config.LoadOrCreate()
		if created {
			logger.Printf("Created default config at %s", cfg.Path())
		}
	}
	if err != nil {
		return nil, err
	}

	if debugDump {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}
	if transportName != "" {
		cfg.MCP.Transport = transportName
	}
	if serverURL != "" {
		cfg.MCP.URL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveModel picks the model named on the command line, or the default
func resolveModel(cmd *cobra.Command, cfg *config.Config, args []string) (string, config.ModelConfig, error) {
	var key string
	if len(args) > 0 {
		key = args[0]
	}
	key, model, err := cfg.ResolveModel(key)
	if err != nil {
		return "", config.ModelConfig{}, err
	}
	if cmd.Flags().Changed("thinking") {
		model.EnableThinking = thinking
	}
	return key, model, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	key, model, err := resolveModel(cmd, cfg, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := interactive.DefaultStyles(out)
	interactive.PrintBanner(out, styles, cfg, key, model)

	ctx := context.Background()
	b, err := bridge.Connect(ctx, cfg, model, interactive.NewConsoleRenderer(out, styles), logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()

	interactive.PrintTools(out, styles, b.Tools())

	session := interactive.New(cfg, b, cmd.InOrStdin(), out, styles, logger)
	return session.Start(ctx)
}
