// types/types.go
package types

import "encoding/json"

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in the conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDescriptor describes a callable tool advertised by the tool server
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Required returns the required argument names declared by the tool schema
func (d ToolDescriptor) Required() []string {
	var out []string
	switch req := d.Parameters["required"].(type) {
	case []string:
		out = append(out, req...)
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Properties returns the per-argument schemas declared by the tool schema
func (d ToolDescriptor) Properties() map[string]any {
	props, _ := d.Parameters["properties"].(map[string]any)
	return props
}

// ToolCall is a fully accumulated tool invocation request from the model
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of one tool invocation
type ToolResult struct {
	Name    string          `json:"name"`
	Text    string          `json:"text"`
	Payload json.RawMessage `json:"payload"`
	IsError bool            `json:"is_error"`
}

// TurnState tracks one user turn across streaming rounds
type TurnState struct {
	ToolCount   int
	StopReached bool
	Round       int
}
