package agent

import (
	"sync"

	"github.com/flightscout/flightscout/storage"
)

// Conversation is the live message buffer handed to the runtime on each chat
// turn. It holds in-flight history only; the persisted session record remains
// the source of truth. It implements compaction.ConversationBuffer so the
// compaction coordinator can clear and reseed it after a compaction event.
type Conversation struct {
	mu       sync.Mutex
	messages []storage.Message
}

// NewConversation creates an empty conversation buffer.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds one message to the buffer.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, storage.Message{Role: role, Content: content})
}

// AppendSystemMessage adds a system-role message to the buffer.
func (c *Conversation) AppendSystemMessage(text string) {
	c.Append(storage.RoleSystem, text)
}

// Clear drops all buffered messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Len returns the number of buffered messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Messages returns a copy of the buffered messages.
func (c *Conversation) Messages() []storage.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storage.Message, len(c.messages))
	copy(out, c.messages)
	return out
}
