package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"regexp"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/sammcj/mcpagent/types"
	"github.com/tidwall/gjson"
)

// Finish reasons reported on the last chunk of a response
const (
	FinishToolCalls = "tool_calls"
	FinishStop      = "stop"
)

// Delta is one streamed increment of a chat completion
type Delta struct {
	Reasoning    string
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolCallDelta is a fragment of a tool call. Name is empty on argument-only fragments.
type ToolCallDelta struct {
	Index     int64
	Name      string
	Arguments string
}

// Stream yields the deltas of a single completion response
type Stream interface {
	Next() bool
	Current() Delta
	Err() error
	Close() error
}

// Options configures a Client
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	EnableThinking bool
	MaxRetries     int
	Timeout        time.Duration
	Debug          bool
	HTTPClient     *http.Client
}

// Client streams chat completions from an OpenAI-compatible endpoint
type Client struct {
	client         openai.Client
	model          string
	enableThinking bool
	timeout        time.Duration
	tools          []openai.ChatCompletionToolParam
	toolNames      map[string]string
	logger         *log.Logger
}

// New creates a new chat-completion client
func New(opts Options, logger *log.Logger) *Client {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(opts.BaseURL),
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Debug {
		reqOpts = append(reqOpts, option.WithMiddleware(dumpRequests(logger)))
	}

	return &Client{
		client:         openai.NewClient(reqOpts...),
		model:          opts.Model,
		enableThinking: opts.EnableThinking,
		timeout:        opts.Timeout,
		toolNames:      make(map[string]string),
		logger:         logger,
	}
}

// SetTools configures the tools offered to the model on every request
func (c *Client) SetTools(tools []types.ToolDescriptor) {
	c.tools = c.tools[:0]
	c.toolNames = make(map[string]string, len(tools))
	for _, tool := range tools {
		name := uniqueToolName(sanitizeToolName(tool.Name), c.toolNames)
		if name != tool.Name {
			c.logger.Printf("Offering tool %s to the model as %s", tool.Name, name)
		}
		c.toolNames[name] = tool.Name

		params := openai.FunctionParameters(tool.Parameters)
		if params == nil {
			params = openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		}
		fn := openai.FunctionDefinitionParam{
			Name:       name,
			Parameters: params,
		}
		if tool.Description != "" {
			fn.Description = openai.String(tool.Description)
		}
		c.tools = append(c.tools, openai.ChatCompletionToolParam{Function: fn})
	}
}

// Stream starts one streaming completion over the full message history.
// The returned stream must be closed by the caller.
func (c *Client) Stream(ctx context.Context, messages []types.Message) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(messages),
	}
	if len(c.tools) > 0 {
		params.Tools = c.tools
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	c.logger.Printf("Requesting completion from %s with %d messages and %d tools", c.model, len(messages), len(c.tools))
	stream := c.client.Chat.Completions.NewStreaming(ctx, params,
		option.WithJSONSet("chat_template_kwargs", map[string]any{"enable_thinking": c.enableThinking}),
	)
	if err := stream.Err(); err != nil {
		cancel()
		stream.Close()
		return nil, classify("stream", err)
	}

	return &chunkStream{stream: stream, cancel: cancel, toolNames: c.toolNames}, nil
}

// chunkStream adapts the SDK stream to Delta values
type chunkStream struct {
	stream    *ssestream.Stream[openai.ChatCompletionChunk]
	cancel    context.CancelFunc
	toolNames map[string]string
	current   Delta
}

func (s *chunkStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		s.current = s.toDelta(chunk.Choices[0])
		return true
	}
	return false
}

func (s *chunkStream) toDelta(choice openai.ChatCompletionChunkChoice) Delta {
	d := Delta{
		Content:      choice.Delta.Content,
		FinishReason: choice.FinishReason,
		// reasoning_content is a provider extension the SDK does not model
		Reasoning: gjson.Get(choice.Delta.RawJSON(), "reasoning_content").String(),
	}
	for _, tc := range choice.Delta.ToolCalls {
		name := tc.Function.Name
		if orig, ok := s.toolNames[name]; ok {
			name = orig
		}
		d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
			Index:     tc.Index,
			Name:      name,
			Arguments: tc.Function.Arguments,
		})
	}
	return d
}

func (s *chunkStream) Current() Delta {
	return s.current
}

func (s *chunkStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return classify("stream", err)
	}
	return nil
}

func (s *chunkStream) Close() error {
	defer s.cancel()
	return s.stream.Close()
}

func convertMessages(messages []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classify maps transport and API failures onto the error taxonomy
func classify(op string, err error) error {
	var (
		apiErr    *openai.Error
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return &types.LLMError{Operation: op, Message: "request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &types.LLMError{Operation: op, Kind: types.ErrTimeout, Message: "model stream timed out", Err: err}
	case errors.As(err, &apiErr):
		return &types.LLMError{Operation: op, Kind: types.ErrConnection, Message: "endpoint rejected the request", Err: err}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return &types.LLMError{Operation: op, Kind: types.ErrTimeout, Message: "model endpoint timed out", Err: err}
		}
		return &types.LLMError{Operation: op, Kind: types.ErrConnection, Message: "model endpoint unreachable", Err: err}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return &types.LLMError{Operation: op, Kind: types.ErrProtocol, Message: "malformed stream chunk", Err: err}
	}
	return &types.LLMError{Operation: op, Kind: types.ErrProtocol, Message: "stream failed", Err: err}
}

var authHeader = regexp.MustCompile(`(?mi)^(Authorization: Bearer ).*$`)

// dumpRequests logs each outgoing request with the bearer token removed
func dumpRequests(logger *log.Logger) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		dump, err := httputil.DumpRequest(req, true)
		if err != nil {
			logger.Printf("Failed to dump request: %v", err)
		} else {
			logger.Printf("Raw request:\n%s", authHeader.ReplaceAll(dump, []byte("${1}****")))
		}
		return next(req)
	}
}

// uniqueToolName suffixes name until it is not already taken
func uniqueToolName(name string, taken map[string]string) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// sanitizeToolName converts a tool name to a format accepted by function-calling APIs
func sanitizeToolName(name string) string {
	sanitized := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '_')
		}
	}
	return string(sanitized)
}
