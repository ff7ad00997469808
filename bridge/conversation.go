package bridge

import "github.com/sammcj/mcpagent/types"

// Conversation is the ordered message history. The first message is always
// the system prompt; everything after it is append-only.
type Conversation struct {
	messages []types.Message
}

// NewConversation starts a history with an empty system prompt followed by
// any seed messages from the user
func NewConversation(seed ...string) *Conversation {
	c := &Conversation{
		messages: []types.Message{{Role: types.RoleSystem}},
	}
	for _, s := range seed {
		if s != "" {
			c.messages = append(c.messages, types.Message{Role: types.RoleUser, Content: s})
		}
	}
	return c
}

// SetSystem replaces the system prompt content in place
func (c *Conversation) SetSystem(content string) {
	c.messages[0].Content = content
}

// Append adds a message to the end of the history
func (c *Conversation) Append(msg types.Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the history
func (c *Conversation) Messages() []types.Message {
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages, including the system prompt
func (c *Conversation) Len() int {
	return len(c.messages)
}
