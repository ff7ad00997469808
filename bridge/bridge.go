package bridge

import (
	"context"
	"fmt"
	"log"

	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/llm"
	"github.com/sammcj/mcpagent/types"
)

// eventBuffer lets the accumulator keep draining the stream while a batch is dispatched
const eventBuffer = 64

// Streamer opens chat-completion streams
type Streamer interface {
	Stream(ctx context.Context, messages []types.Message) (llm.Stream, error)
}

// Renderer displays streamed output as it arrives
type Renderer interface {
	Header(ch Channel, afterTools bool)
	Text(ch Channel, text string)
	EndRound()
}

// Bridge drives conversation turns between the model and the tool server
type Bridge struct {
	llm        Streamer
	acc        *Accumulator
	dispatcher *Dispatcher
	conv       *Conversation
	prompts    config.Prompts
	maxRounds  int
	renderer   Renderer
	registry   *Registry
	tools      []types.ToolDescriptor
	logger     *log.Logger
}

// New creates a Bridge from its collaborators
func New(cfg *config.Config, streamer Streamer, invoker Invoker, prompts config.Prompts, renderer Renderer, logger *log.Logger) *Bridge {
	auth := MockAuthorizer{Success: cfg.Signing.MockSuccess, TxHash: cfg.Signing.MockTxHash}

	return &Bridge{
		llm:        streamer,
		acc:        NewAccumulator(logger),
		dispatcher: NewDispatcher(invoker, auth, cfg.Tools.Parallel, logger),
		conv:       NewConversation(cfg.SeedMessage()),
		prompts:    prompts,
		maxRounds:  cfg.Conversation.MaxToolRounds,
		renderer:   renderer,
		logger:     logger,
	}
}

// Connect dials the tool server, loads its tools and returns a Bridge talking to model
func Connect(ctx context.Context, cfg *config.Config, model config.ModelConfig, renderer Renderer, logger *log.Logger) (*Bridge, error) {
	logger.Println("Creating new bridge...")

	prompts, err := cfg.LoadPrompts()
	if err != nil {
		return nil, &types.ConfigError{Field: "prompts", Message: "failed to load prompts", Err: err}
	}

	registry := NewRegistry(cfg.MCP, cfg.Tools.ValidateArguments, logger)
	if err := registry.Connect(ctx); err != nil {
		return nil, err
	}

	tools, err := registry.ListTools(ctx)
	if err != nil {
		registry.Close()
		return nil, err
	}

	logger.Printf("Creating LLM client for %s at %s", model.Model, model.BaseURL)
	client := llm.New(llm.Options{
		BaseURL:        model.BaseURL,
		APIKey:         model.APIKey,
		Model:          model.Model,
		EnableThinking: model.EnableThinking,
		MaxRetries:     cfg.LLM.MaxRetries,
		Timeout:        cfg.LLM.Timeout,
		Debug:          cfg.Debug,
	}, logger)
	client.SetTools(tools)

	b := New(cfg, client, registry, prompts, renderer, logger)
	b.registry = registry
	b.tools = tools

	logger.Println("Bridge instance created successfully")
	return b, nil
}

// Tools returns the tools offered to the model
func (b *Bridge) Tools() []types.ToolDescriptor {
	return b.tools
}

// Conversation returns the message history
func (b *Bridge) Conversation() *Conversation {
	return b.conv
}

// ProcessMessage runs one user turn. It streams completions and dispatches the
// requested tools until a response requests none, then returns the last answer text.
func (b *Bridge) ProcessMessage(ctx context.Context, input string) (string, error) {
	b.logger.Printf("Processing message: %s", input)
	b.conv.Append(types.Message{Role: types.RoleUser, Content: input})

	state := &types.TurnState{}
	var answer string

	for ; state.Round < b.maxRounds; state.Round++ {
		system := b.prompts.Tool
		if state.Round > 0 {
			system = b.prompts.Output
		}

		res, err := b.runRound(ctx, state, system)
		if err != nil {
			return answer, err
		}
		if res.Answer != "" {
			answer = res.Answer
		}

		// a stop only ends the turn when this response dispatched nothing
		if res.Calls == 0 {
			state.StopReached = true
			if !res.Stop {
				b.logger.Printf("Response ended without a stop finish reason")
			}
			b.logger.Printf("Turn complete after %d rounds and %d tool calls", state.Round+1, state.ToolCount)
			return answer, nil
		}
	}

	b.logger.Printf("Ending turn after %d rounds with tool calls still being requested", b.maxRounds)
	return answer, &types.BridgeError{
		Operation: "turn",
		Kind:      types.ErrRoundLimit,
		Message:   fmt.Sprintf("stopped after %d rounds, %d tool calls", b.maxRounds, state.ToolCount),
	}
}

type roundResult struct {
	res Result
	err error
}

// runRound streams one completion. The accumulator runs in its own goroutine
// while this one renders text and dispatches tool batches as they are emitted.
func (b *Bridge) runRound(ctx context.Context, state *types.TurnState, system string) (Result, error) {
	b.conv.SetSystem(system)

	stream, err := b.llm.Stream(ctx, b.conv.Messages())
	if err != nil {
		return Result{}, &types.BridgeError{Operation: "stream", Message: "failed to start completion", Err: err}
	}
	defer stream.Close()

	events := make(chan Event, eventBuffer)
	done := make(chan roundResult, 1)
	go func() {
		res, err := b.acc.Run(ctx, stream, events)
		done <- roundResult{res: res, err: err}
	}()

	afterTools := state.Round > 0
	for ev := range events {
		switch ev.Kind {
		case EventHeader:
			b.renderer.Header(ev.Channel, afterTools)
		case EventText:
			b.renderer.Text(ev.Channel, ev.Text)
		case EventToolCalls:
			b.logger.Printf("Processing %d tool calls", len(ev.Calls))
			b.dispatcher.Dispatch(ctx, state, ev.Calls, b.conv)
		}
	}
	b.renderer.EndRound()

	rr := <-done
	if rr.err != nil {
		return rr.res, rr.err
	}

	if rr.res.Answer != "" {
		b.conv.Append(types.Message{Role: types.RoleAssistant, Content: rr.res.Answer})
	}
	return rr.res, nil
}

// Close cleans up resources
func (b *Bridge) Close() error {
	if b.registry == nil {
		return nil
	}
	if err := b.registry.Close(); err != nil {
		return fmt.Errorf("failed to close MCP session: %w", err)
	}
	return nil
}
