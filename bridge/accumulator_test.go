package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sammcj/mcpagent/llm"
	"github.com/sammcj/mcpagent/types"
)

func runAccumulator(t *testing.T, stream llm.Stream) ([]Event, Result, error) {
	t.Helper()
	events := make(chan Event, eventBuffer)
	type out struct {
		res Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := NewAccumulator(testLogger()).Run(context.Background(), stream, events)
		done <- out{res, err}
	}()

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	o := <-done
	return got, o.res, o.err
}

func batches(events []Event) [][]types.ToolCall {
	var out [][]types.ToolCall
	for _, ev := range events {
		if ev.Kind == EventToolCalls {
			out = append(out, ev.Calls)
		}
	}
	return out
}

func TestAccumulatorMergesRepeatedNames(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		toolName("getBalance"),
		toolArgs(`{"addr":`),
		toolName("getPrice"),
		toolArgs(`{"sym":"ETH"}`),
		toolName("getBalance"),
		toolArgs(`"0x1"}`),
		toolsDone(),
	}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := batches(events)
	if len(got) != 1 {
		t.Fatalf("expected one batch, got %d", len(got))
	}
	want := []types.ToolCall{
		{Name: "getBalance", Arguments: `{"addr":"0x1"}`},
		{Name: "getPrice", Arguments: `{"sym":"ETH"}`},
	}
	if len(got[0]) != len(want) {
		t.Fatalf("batch = %+v", got[0])
	}
	for i := range want {
		if got[0][i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[0][i], want[i])
		}
	}
	if res.Calls != 2 || res.Batches != 1 || res.Stop {
		t.Errorf("result = %+v", res)
	}
}

func TestAccumulatorJoinsSplitArguments(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		toolName("getBalance"),
		toolArgs(`{"addr":`),
		toolArgs(`"0x1"}`),
		toolsDone(),
	}}

	events, _, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := batches(events)
	if len(got) != 1 || len(got[0]) != 1 || got[0][0].Arguments != `{"addr":"0x1"}` {
		t.Fatalf("batches = %+v", got)
	}
}

func TestAccumulatorFollowsIndexForInterleavedCalls(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, Name: "a"}, {Index: 1, Name: "b"}}},
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `{"x":`}}},
		{ToolCalls: []llm.ToolCallDelta{{Index: 1, Arguments: `{"y":2}`}}},
		{ToolCalls: []llm.ToolCallDelta{{Index: 0, Arguments: `1}`}}},
		toolsDone(),
	}}

	events, _, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := batches(events)
	if len(got) != 1 || got[0][0].Arguments != `{"x":1}` || got[0][1].Arguments != `{"y":2}` {
		t.Fatalf("batches = %+v", got)
	}
}

func TestAccumulatorChannelHeaders(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		reasoning("let me "),
		reasoning("think"),
		content("Hel"),
		content("lo"),
		reasoning("again"),
		stop(),
	}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var headers []Channel
	for _, ev := range events {
		if ev.Kind == EventHeader {
			headers = append(headers, ev.Channel)
		}
	}
	want := []Channel{ChannelReasoning, ChannelAnswer, ChannelReasoning}
	if len(headers) != len(want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}
	for i := range want {
		if headers[i] != want[i] {
			t.Fatalf("headers = %v, want %v", headers, want)
		}
	}
	if res.Answer != "Hello" || res.Reasoning != "let me thinkagain" || !res.Stop {
		t.Fatalf("result = %+v", res)
	}
}

func TestAccumulatorProcessesEveryFieldOfADelta(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{{
		Reasoning:    "r",
		Content:      "c",
		ToolCalls:    []llm.ToolCallDelta{{Name: "swap", Arguments: `{}`}},
		FinishReason: llm.FinishToolCalls,
	}}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reasoning != "r" || res.Answer != "c" {
		t.Fatalf("result = %+v", res)
	}
	got := batches(events)
	if len(got) != 1 || got[0][0].Name != "swap" {
		t.Fatalf("batches = %+v", got)
	}
}

func TestAccumulatorStopIsSticky(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		content("done"),
		stop(),
		{},
		content(""),
	}}

	_, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Stop {
		t.Fatalf("stop flag was cleared")
	}
}

func TestAccumulatorStopWithoutCalls(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{content("Hello"), stop()}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(batches(events)) != 0 || res.Calls != 0 {
		t.Fatalf("unexpected tool calls: %+v", events)
	}
}

func TestAccumulatorEmitsBatchBeforeStreamEnds(t *testing.T) {
	stream := &gatedStream{
		scriptedStream: scriptedStream{deltas: []llm.Delta{
			toolName("getBalance"),
			toolArgs(`{}`),
			toolsDone(),
			content("trailing"),
		}},
		open: 3,
		gate: make(chan struct{}),
	}

	events := make(chan Event, eventBuffer)
	done := make(chan error, 1)
	go func() {
		_, err := NewAccumulator(testLogger()).Run(context.Background(), stream, events)
		done <- err
	}()

	select {
	case ev := <-events:
		if ev.Kind != EventToolCalls {
			t.Fatalf("first event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tool batch was not emitted while the stream was still open")
	}

	close(stream.gate)
	for range events {
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAccumulatorResetsBetweenBatches(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		toolName("a"),
		toolArgs(`{"n":1}`),
		toolsDone(),
		toolName("a"),
		toolArgs(`{"n":2}`),
		toolsDone(),
	}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := batches(events)
	if len(got) != 2 || got[0][0].Arguments != `{"n":1}` || got[1][0].Arguments != `{"n":2}` {
		t.Fatalf("batches = %+v", got)
	}
	if res.Batches != 2 || res.Calls != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAccumulatorFlushesPendingAtEnd(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		toolName("getBalance"),
		toolArgs(`{}`),
		stop(),
	}}

	events, res, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := batches(events); len(got) != 1 || got[0][0].Name != "getBalance" {
		t.Fatalf("batches = %+v", got)
	}
	if !res.Stop || res.Calls != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAccumulatorDropsOrphanArguments(t *testing.T) {
	stream := &scriptedStream{deltas: []llm.Delta{
		toolArgs(`{"lost":true}`),
		toolName("getBalance"),
		toolArgs(`{}`),
		toolsDone(),
	}}

	events, _, err := runAccumulator(t, stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := batches(events)
	if len(got) != 1 || got[0][0].Arguments != `{}` {
		t.Fatalf("batches = %+v", got)
	}
}

func TestAccumulatorStreamErrorDiscardsPending(t *testing.T) {
	streamErr := &types.LLMError{Operation: "stream", Kind: types.ErrProtocol, Message: "bad chunk"}
	stream := &scriptedStream{
		deltas: []llm.Delta{toolName("getBalance"), toolArgs(`{"addr":`)},
		err:    streamErr,
	}

	events, _, err := runAccumulator(t, stream)
	if !errors.Is(err, types.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if len(batches(events)) != 0 {
		t.Fatalf("incomplete calls must not be dispatched")
	}
}

func TestAccumulatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := &scriptedStream{deltas: []llm.Delta{content("a"), content("b")}}
	events := make(chan Event)
	_, err := NewAccumulator(testLogger()).Run(ctx, stream, events)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := <-events; ok {
		t.Fatalf("events channel should be closed")
	}
}
