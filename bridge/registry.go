package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/llm"
	"github.com/sammcj/mcpagent/types"
	"github.com/tidwall/gjson"
)

const (
	clientName    = "mcpagent"
	clientVersion = "0.1.0"
)

// Registry wraps the tool server connection and the tools it advertises
type Registry struct {
	cfg       config.MCPConfig
	validate  bool
	dial      Dialer
	session   Session
	tools     []types.ToolDescriptor
	validator *llm.Validator
	logger    *log.Logger
}

// NewRegistry creates a registry for the configured tool server. When
// validate is set, arguments are checked against the advertised schemas
// before they are sent.
func NewRegistry(cfg config.MCPConfig, validate bool, logger *log.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		validate:  validate,
		dial:      dialSession,
		validator: llm.NewValidator(nil),
		logger:    logger,
	}
}

// Connect opens and initialises the session, retrying with backoff
func (r *Registry) Connect(ctx context.Context) error {
	r.logger.Printf("Connecting to MCP server via %s", r.cfg.Transport)

	backoff := r.cfg.Retry.InitialBackoff
	attempts := r.cfg.Retry.MaxRetries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = r.connectOnce(ctx)
		if err == nil {
			return nil
		}

		if !isRetryableError(err) || attempt == attempts {
			break
		}

		r.logger.Printf("Retrying after error: %v (attempt %d/%d)", err, attempt, attempts)
		select {
		case <-ctx.Done():
			return &types.ToolError{Tool: "connect", Kind: types.ErrConnection, Message: "connect cancelled", Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * r.cfg.Retry.BackoffFactor)
	}

	return err
}

func (r *Registry) connectOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	session, err := r.dial(ctx, r.cfg)
	if err != nil {
		return &types.ToolError{Tool: "connect", Kind: types.ErrConnection, Message: "failed to open session", Err: err}
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	res, err := session.Initialize(ctx, req)
	if err != nil {
		session.Close()
		return &types.ToolError{Tool: "connect", Kind: callErrorKind(ctx, err), Message: "initialize failed", Err: err}
	}

	r.logger.Printf("Connected to MCP server %s %s", res.ServerInfo.Name, res.ServerInfo.Version)
	r.session = session
	return nil
}

// ListTools fetches the tool catalogue and caches it for validation
func (r *Registry) ListTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	if r.session == nil {
		return nil, &types.ToolError{Tool: "list", Kind: types.ErrConnection, Message: "not connected"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var (
		tools []types.ToolDescriptor
		seen  = make(map[string]bool)
		req   mcp.ListToolsRequest
	)
	for {
		res, err := r.session.ListTools(ctx, req)
		if err != nil {
			kind := callErrorKind(ctx, err)
			if errors.Is(kind, types.ErrRemote) {
				kind = types.ErrProtocol
			}
			return nil, &types.ToolError{Tool: "list", Kind: kind, Message: "failed to list tools", Err: err}
		}
		if res == nil {
			return nil, &types.ToolError{Tool: "list", Kind: types.ErrProtocol, Message: "empty tool listing"}
		}

		for _, tool := range res.Tools {
			desc, err := toDescriptor(tool)
			if err != nil {
				return nil, &types.ToolError{Tool: tool.Name, Kind: types.ErrProtocol, Message: "malformed tool", Err: err}
			}
			if seen[desc.Name] {
				return nil, &types.ToolError{Tool: desc.Name, Kind: types.ErrProtocol, Message: "duplicate tool name"}
			}
			seen[desc.Name] = true
			tools = append(tools, desc)
		}

		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}

	r.tools = tools
	r.validator = llm.NewValidator(tools)
	for name, err := range r.validator.SchemaErrors() {
		r.logger.Printf("Arguments for %s will not be validated: %v", name, err)
	}
	r.logger.Printf("Discovered %d tools", len(tools))
	return tools, nil
}

// Tools returns the catalogue fetched by the last ListTools call
func (r *Registry) Tools() []types.ToolDescriptor {
	return r.tools
}

// Invoke calls a tool on the server. seq is the call's number within the current turn.
func (r *Registry) Invoke(ctx context.Context, seq int, name string, args map[string]any) (*types.ToolResult, error) {
	if r.session == nil {
		return nil, &types.ToolError{Tool: name, Kind: types.ErrConnection, Message: "not connected"}
	}
	if !r.validator.Has(name) {
		return nil, &types.ToolError{Tool: name, Kind: types.ErrArgument, Message: "unknown tool"}
	}
	if r.validate {
		if err := r.validator.ValidateCall(name, args); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	r.logger.Printf("Calling MCP tool #%d: %s", seq, name)
	res, err := r.session.CallTool(ctx, req)
	if err != nil {
		return nil, &types.ToolError{Tool: name, Kind: callErrorKind(ctx, err), Message: "call failed", Err: err}
	}
	if res == nil {
		return nil, &types.ToolError{Tool: name, Kind: types.ErrProtocol, Message: "empty result"}
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, &types.ToolError{Tool: name, Kind: types.ErrProtocol, Message: "failed to encode result", Err: err}
	}

	result := &types.ToolResult{
		Name:    name,
		Text:    textContent(res),
		Payload: payload,
		IsError: res.IsError,
	}
	r.logger.Printf("Tool #%d result: %s", seq, payload)

	if res.IsError {
		return result, &types.ToolError{Tool: name, Kind: types.ErrRemote, Message: result.Text}
	}
	return result, nil
}

// Close releases the session
func (r *Registry) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	return err
}

// toDescriptor converts an advertised tool, preferring its raw schema when present
func toDescriptor(tool mcp.Tool) (types.ToolDescriptor, error) {
	if tool.Name == "" {
		return types.ToolDescriptor{}, fmt.Errorf("tool has no name")
	}

	data, err := json.Marshal(tool)
	if err != nil {
		return types.ToolDescriptor{}, err
	}

	params := map[string]any{}
	if raw := gjson.GetBytes(data, "inputSchema"); raw.IsObject() {
		if err := json.Unmarshal([]byte(raw.Raw), &params); err != nil {
			return types.ToolDescriptor{}, err
		}
	}
	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}

	return types.ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
	}, nil
}

// textContent joins the text parts of a result
func textContent(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// callErrorKind sorts a failed MCP request into the error taxonomy. The
// client reports transport failures wrapped and JSON-RPC errors as plain text.
func callErrorKind(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.ErrTimeout
	case errors.Is(err, context.Canceled):
		return nil
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return types.ErrTimeout
		}
		return types.ErrConnection
	case strings.HasPrefix(err.Error(), "transport error"),
		strings.Contains(err.Error(), "not initialized"):
		return types.ErrConnection
	}
	return types.ErrRemote
}

// isRetryableError determines if an error should trigger a reconnect
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, types.ErrConnection) || errors.Is(err, types.ErrTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
