package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/sammcj/mcpagent/config"
	"github.com/sammcj/mcpagent/llm"
	"github.com/sammcj/mcpagent/types"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// scriptedStream replays a fixed list of deltas
type scriptedStream struct {
	deltas []llm.Delta
	err    error
	pos    int
	closed bool
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.deltas) {
		return false
	}
	s.pos++
	return true
}

func (s *scriptedStream) Current() llm.Delta { return s.deltas[s.pos-1] }
func (s *scriptedStream) Err() error        { return s.err }
func (s *scriptedStream) Close() error      { s.closed = true; return nil }

// gatedStream blocks after the first `open` deltas until gate is closed
type gatedStream struct {
	scriptedStream
	open int
	gate chan struct{}
}

func (s *gatedStream) Next() bool {
	if s.pos == s.open {
		<-s.gate
	}
	return s.scriptedStream.Next()
}

// scriptedStreamer hands out one stream per request and records what was sent
type scriptedStreamer struct {
	streams  []llm.Stream
	requests [][]types.Message
	err      error
}

func (s *scriptedStreamer) Stream(_ context.Context, messages []types.Message) (llm.Stream, error) {
	s.requests = append(s.requests, messages)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.streams) == 0 {
		return &scriptedStream{deltas: []llm.Delta{stop()}}, nil
	}
	next := s.streams[0]
	s.streams = s.streams[1:]
	return next, nil
}

// fakeInvoker returns canned text per tool name
type fakeInvoker struct {
	mu     sync.Mutex
	texts  map[string]string
	errs   map[string]error
	before func(name string)
	calls  []invokedCall
}

type invokedCall struct {
	seq  int
	name string
	args map[string]any
}

func (f *fakeInvoker) Invoke(_ context.Context, seq int, name string, args map[string]any) (*types.ToolResult, error) {
	if f.before != nil {
		f.before(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invokedCall{seq: seq, name: name, args: args})
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	text := f.texts[name]
	payload, _ := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	return &types.ToolResult{Name: name, Text: text, Payload: payload}, nil
}

func (f *fakeInvoker) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.name
	}
	return out
}

// recordingRenderer captures rendered output
type recordingRenderer struct {
	headers []string
	text    strings.Builder
	rounds  int
}

func (r *recordingRenderer) Header(ch Channel, afterTools bool) {
	h := ch.String()
	if afterTools {
		h += "(tools)"
	}
	r.headers = append(r.headers, h)
}

func (r *recordingRenderer) Text(_ Channel, text string) { r.text.WriteString(text) }
func (r *recordingRenderer) EndRound()                  { r.rounds++ }

// memoryConversation implements Appender for dispatcher tests
type memoryConversation struct {
	messages []types.Message
}

func (m *memoryConversation) Append(msg types.Message) { m.messages = append(m.messages, msg) }

func content(s string) llm.Delta   { return llm.Delta{Content: s} }
func reasoning(s string) llm.Delta { return llm.Delta{Reasoning: s} }
func stop() llm.Delta              { return llm.Delta{FinishReason: llm.FinishStop} }
func toolsDone() llm.Delta         { return llm.Delta{FinishReason: llm.FinishToolCalls} }

func toolName(name string) llm.Delta {
	return llm.Delta{ToolCalls: []llm.ToolCallDelta{{Name: name}}}
}

func toolArgs(args string) llm.Delta {
	return llm.Delta{ToolCalls: []llm.ToolCallDelta{{Arguments: args}}}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Conversation.SeedMessage = "seed for {address}"
	cfg.Conversation.ConnectAddress = "0xabc"
	cfg.Conversation.MaxToolRounds = 4
	return cfg
}
