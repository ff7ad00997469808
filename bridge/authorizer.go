package bridge

import (
	"context"
	"fmt"

	"github.com/sammcj/mcpagent/types"
	"github.com/tidwall/gjson"
)

// AuthFailureText is reported when the signing step is declined
const AuthFailureText = "tx failed. error: user cancel."

// Authorizer resolves tool results that need an external signature
type Authorizer interface {
	Authorize(ctx context.Context, call types.ToolCall, result *types.ToolResult) string
}

// MockAuthorizer stands in for a wallet, reporting a fixed outcome
type MockAuthorizer struct {
	Success bool
	TxHash  string
}

// Authorize returns the configured outcome message
func (m MockAuthorizer) Authorize(_ context.Context, _ types.ToolCall, _ *types.ToolResult) string {
	if m.Success {
		return fmt.Sprintf("tx success. tx hash: %s", m.TxHash)
	}
	return AuthFailureText
}

// needsSignature reports whether a tool's text payload is an object with signNeed set to true
func needsSignature(text string) bool {
	if !gjson.Valid(text) {
		return false
	}
	doc := gjson.Parse(text)
	return doc.IsObject() && doc.Get("signNeed").Type == gjson.True
}
