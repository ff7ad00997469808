package bridge

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcpagent/config"
)

// Session is the subset of the MCP client used by the registry
type Session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens an uninitialised session to the tool server
type Dialer func(ctx context.Context, cfg config.MCPConfig) (Session, error)

// dialSession builds the client for the configured transport
func dialSession(ctx context.Context, cfg config.MCPConfig) (Session, error) {
	var (
		c   *client.Client
		err error
	)

	switch cfg.Transport {
	case config.TransportSSE:
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		c, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case config.TransportHTTPStream:
		opts := []transport.StreamableHTTPCOption{transport.WithHTTPTimeout(cfg.Timeout)}
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	case config.TransportStdio:
		// the stdio client starts its subprocess on construction
		sc, err := client.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Arguments...)
		if err != nil {
			return nil, err
		}
		return sc, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	if err := startTransport(ctx, c); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
	}
	return c, nil
}

// startTransport starts c within ctx's deadline. The SSE event stream is bound
// to the context given to Start and must outlive the dial, so Start gets a
// context that ctx's cancellation does not reach.
func startTransport(ctx context.Context, c *client.Client) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
