package agent

import (
	"testing"

	"github.com/flightscout/flightscout/storage"
)

func TestConversationAppendAndClear(t *testing.T) {
	conv := NewConversation()

	if conv.Len() != 0 {
		t.Fatalf("new conversation Len = %d, want 0", conv.Len())
	}

	conv.Append(storage.RoleUser, "hello")
	conv.Append(storage.RoleAssistant, "hi there")
	conv.AppendSystemMessage("summary of earlier chat")

	msgs := conv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Len = %d, want 3", len(msgs))
	}
	if msgs[2].Role != storage.RoleSystem || msgs[2].Content != "summary of earlier chat" {
		t.Errorf("system entry = %+v", msgs[2])
	}

	// Returned slice is a copy.
	msgs[0].Content = "mutated"
	if conv.Messages()[0].Content != "hello" {
		t.Error("Messages() shares memory with the buffer")
	}

	conv.Clear()
	if conv.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", conv.Len())
	}
}
