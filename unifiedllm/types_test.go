package unifiedllm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("SystemMessage", func(t *testing.T) {
		msg := SystemMessage("You are helpful.")
		if msg.Role != RoleSystem {
			t.Errorf("expected role %q, got %q", RoleSystem, msg.Role)
		}
		if msg.TextContent() != "You are helpful." {
			t.Errorf("expected text %q, got %q", "You are helpful.", msg.TextContent())
		}
	})

	t.Run("UserMessage", func(t *testing.T) {
		msg := UserMessage("Hello")
		if msg.Role != RoleUser || msg.TextContent() != "Hello" {
			t.Errorf("unexpected user message %+v", msg)
		}
	})

	t.Run("ToolResultMessage", func(t *testing.T) {
		msg := ToolResultMessage("call_123", "search", `{"success":true}`, false)
		if msg.Role != RoleTool {
			t.Errorf("expected role %q, got %q", RoleTool, msg.Role)
		}
		if len(msg.Content) != 1 || msg.Content[0].Kind != ContentToolResult {
			t.Fatalf("expected one tool result part, got %+v", msg.Content)
		}
		tr := msg.Content[0].ToolResult
		if tr.ToolCallID != "call_123" || tr.Name != "search" || tr.IsError {
			t.Errorf("unexpected tool result %+v", tr)
		}
		if msg.TextContent() != "" {
			t.Errorf("tool results carry no text, got %q", msg.TextContent())
		}
	})
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("Let me look."),
			ToolCallPart("call_1", "search", json.RawMessage(`{"query":"a"}`)),
			ToolCallPart("call_2", "lookup", json.RawMessage(`{}`)),
		},
	}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[1].Name != "lookup" {
		t.Errorf("tool calls out of order: %+v", calls)
	}
	if msg.TextContent() != "Let me look." {
		t.Errorf("expected text %q, got %q", "Let me look.", msg.TextContent())
	}

	resp := Response{Message: msg}
	if len(resp.ToolCalls()) != 2 || resp.Text() != "Let me look." {
		t.Errorf("response accessors disagree with the message")
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20, Estimated: true}
	sum := a.Add(b)
	if sum.InputTokens != 15 || sum.OutputTokens != 35 || sum.TotalTokens != 50 {
		t.Errorf("unexpected sum %+v", sum)
	}
	if !sum.Estimated {
		t.Error("a sum including an estimate is an estimate")
	}
}
