package bridge

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/sammcj/mcpagent/types"
)

// Invoker executes a single tool call
type Invoker interface {
	Invoke(ctx context.Context, seq int, name string, args map[string]any) (*types.ToolResult, error)
}

// Appender receives the messages produced by dispatch
type Appender interface {
	Append(msg types.Message)
}

// Dispatcher runs tool-call batches and folds their results into the conversation
type Dispatcher struct {
	invoker  Invoker
	auth     Authorizer
	parallel bool
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher. With parallel set, the calls of a batch
// run concurrently but their messages are still appended in announcement order.
func NewDispatcher(invoker Invoker, auth Authorizer, parallel bool, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		invoker:  invoker,
		auth:     auth,
		parallel: parallel,
		logger:   logger,
	}
}

type invocation struct {
	seq    int
	call   types.ToolCall
	args   map[string]any
	result *types.ToolResult
	err    error
}

// Dispatch invokes calls in order and appends one user message per successful
// result, plus an authorization outcome when the result asks for a signature.
// A failed call is logged and contributes no message. The successful results
// are returned in order.
func (d *Dispatcher) Dispatch(ctx context.Context, state *types.TurnState, calls []types.ToolCall, conv Appender) []types.ToolResult {
	invs := make([]*invocation, 0, len(calls))
	for _, call := range calls {
		state.ToolCount++
		inv := &invocation{seq: state.ToolCount, call: call}
		d.logger.Printf("Call mcp tool #%d. functionName: %s, params: %s", inv.seq, call.Name, call.Arguments)

		inv.args, inv.err = parseArguments(call)
		invs = append(invs, inv)
	}

	if d.parallel && len(invs) > 1 {
		var wg sync.WaitGroup
		for _, inv := range invs {
			if inv.err != nil {
				continue
			}
			wg.Add(1)
			go func(inv *invocation) {
				defer wg.Done()
				inv.result, inv.err = d.invoker.Invoke(ctx, inv.seq, inv.call.Name, inv.args)
			}(inv)
		}
		wg.Wait()
	} else {
		for _, inv := range invs {
			if inv.err != nil {
				continue
			}
			inv.result, inv.err = d.invoker.Invoke(ctx, inv.seq, inv.call.Name, inv.args)
		}
	}

	var results []types.ToolResult
	for _, inv := range invs {
		if inv.err != nil {
			d.logger.Printf("Tool call #%d %s failed: %v", inv.seq, inv.call.Name, inv.err)
			continue
		}

		conv.Append(types.Message{Role: types.RoleUser, Content: string(inv.result.Payload)})
		if needsSignature(inv.result.Text) {
			outcome := d.auth.Authorize(ctx, inv.call, inv.result)
			d.logger.Printf("Tool call #%d %s requires signing: %s", inv.seq, inv.call.Name, outcome)
			conv.Append(types.Message{Role: types.RoleUser, Content: outcome})
		}
		results = append(results, *inv.result)
	}

	return results
}

// parseArguments decodes the accumulated argument string. An empty string is
// an empty argument object.
func parseArguments(call types.ToolCall) (map[string]any, error) {
	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &types.ToolError{Tool: call.Name, Kind: types.ErrArgument, Message: "arguments are not a JSON object", Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
