package bridge

import (
	"context"
	"log"
	"strings"

	"github.com/sammcj/mcpagent/llm"
	"github.com/sammcj/mcpagent/types"
)

// Channel is the live output section a text fragment belongs to
type Channel int

const (
	ChannelNone Channel = iota
	ChannelReasoning
	ChannelAnswer
)

func (c Channel) String() string {
	switch c {
	case ChannelReasoning:
		return "reasoning"
	case ChannelAnswer:
		return "answer"
	}
	return "none"
}

// EventKind identifies what an Event carries
type EventKind int

const (
	// EventHeader marks a switch to a new output channel
	EventHeader EventKind = iota
	// EventText carries a text fragment for the current channel
	EventText
	// EventToolCalls carries a frozen batch of complete tool calls
	EventToolCalls
)

// Event is emitted by the Accumulator while a response streams
type Event struct {
	Kind    EventKind
	Channel Channel
	Text    string
	Calls   []types.ToolCall
}

// Result summarises one streamed response
type Result struct {
	Answer    string
	Reasoning string
	// Stop is set once a "stop" finish reason is seen and is never cleared
	Stop bool
	// Batches counts the tool-call batches emitted
	Batches int
	// Calls counts the tool calls across all batches
	Calls int
}

// Accumulator rebuilds text and tool calls from a fragmented completion stream
type Accumulator struct {
	logger *log.Logger
}

// NewAccumulator creates an accumulator
func NewAccumulator(logger *log.Logger) *Accumulator {
	return &Accumulator{logger: logger}
}

type pendingCall struct {
	name string
	args strings.Builder
}

// run holds the state of one response
type run struct {
	ctx     context.Context
	events  chan<- Event
	logger  *log.Logger
	channel Channel
	pending []*pendingCall
	byName  map[string]*pendingCall
	byIndex map[int64]*pendingCall
	current *pendingCall
	result  Result
}

// Run consumes stream until it ends, sending events as they occur. Tool calls
// are keyed by name: announcing a name starts its slot or continues it, and
// argument fragments go to the most recently announced slot. A "tool_calls"
// finish reason flushes the pending calls immediately. Calls still pending
// when the stream ends are flushed as a final batch. Run closes events
// before returning.
func (a *Accumulator) Run(ctx context.Context, stream llm.Stream, events chan<- Event) (Result, error) {
	defer close(events)

	r := &run{
		ctx:     ctx,
		events:  events,
		logger:  a.logger,
		byName:  make(map[string]*pendingCall),
		byIndex: make(map[int64]*pendingCall),
	}

	for stream.Next() {
		if err := r.apply(stream.Current()); err != nil {
			return r.result, err
		}
	}
	if err := stream.Err(); err != nil {
		if len(r.pending) > 0 {
			a.logger.Printf("Discarding %d incomplete tool calls after stream error", len(r.pending))
		}
		return r.result, &types.BridgeError{Operation: "stream", Message: "response stream failed", Err: err}
	}

	if len(r.pending) > 0 {
		a.logger.Printf("Stream ended with %d pending tool calls and no tool_calls finish reason, flushing", len(r.pending))
		if err := r.flush(); err != nil {
			return r.result, err
		}
	}

	return r.result, nil
}

func (r *run) apply(d llm.Delta) error {
	if d.Reasoning != "" {
		if err := r.text(ChannelReasoning, d.Reasoning); err != nil {
			return err
		}
		r.result.Reasoning += d.Reasoning
	}

	if d.Content != "" {
		if err := r.text(ChannelAnswer, d.Content); err != nil {
			return err
		}
		r.result.Answer += d.Content
	}

	for _, tc := range d.ToolCalls {
		r.toolFragment(tc)
	}

	switch d.FinishReason {
	case llm.FinishToolCalls:
		if len(r.pending) == 0 {
			r.logger.Printf("Finish reason tool_calls with no pending tool calls")
			return nil
		}
		return r.flush()
	case llm.FinishStop:
		r.result.Stop = true
	}

	return nil
}

func (r *run) text(ch Channel, text string) error {
	if r.channel != ch {
		r.channel = ch
		if err := r.send(Event{Kind: EventHeader, Channel: ch}); err != nil {
			return err
		}
	}
	return r.send(Event{Kind: EventText, Channel: ch, Text: text})
}

func (r *run) toolFragment(tc llm.ToolCallDelta) {
	if tc.Name != "" {
		slot, ok := r.byName[tc.Name]
		if !ok {
			slot = &pendingCall{name: tc.Name}
			r.byName[tc.Name] = slot
			r.pending = append(r.pending, slot)
		}
		r.byIndex[tc.Index] = slot
		r.current = slot
	}

	if tc.Arguments == "" {
		return
	}

	slot := r.current
	if tc.Name == "" {
		if s, ok := r.byIndex[tc.Index]; ok {
			slot = s
		}
	}
	if slot == nil {
		r.logger.Printf("Dropping argument fragment with no announced tool: %q", tc.Arguments)
		return
	}
	slot.args.WriteString(tc.Arguments)
}

// flush freezes the pending calls in announcement order and hands them off
func (r *run) flush() error {
	calls := make([]types.ToolCall, 0, len(r.pending))
	for _, p := range r.pending {
		calls = append(calls, types.ToolCall{Name: p.name, Arguments: p.args.String()})
	}

	r.pending = nil
	r.byName = make(map[string]*pendingCall)
	r.byIndex = make(map[int64]*pendingCall)
	r.current = nil

	r.result.Batches++
	r.result.Calls += len(calls)
	return r.send(Event{Kind: EventToolCalls, Calls: calls})
}

func (r *run) send(ev Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.ctx.Done():
		return &types.BridgeError{Operation: "stream", Message: "turn cancelled", Err: r.ctx.Err()}
	}
}
