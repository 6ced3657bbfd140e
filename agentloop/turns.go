package agentloop

import (
	"github.com/martinemde/entityagent/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnSystem      TurnKind = "system"
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	TurnSteering    TurnKind = "steering"
)

// Turn is one entry of an execution's conversation.
type Turn struct {
	Kind       TurnKind
	Text       string
	ToolCalls  []unifiedllm.ToolCallData // assistant turns
	Results    []ToolOutput              // tool result turns
	Usage      unifiedllm.Usage          // assistant turns
	ResponseID string
}

// ToolOutput is a tool result as the model sees it, after truncation.
type ToolOutput struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// conversation is the history of one execution. It is owned by a single
// Execute call and never shared.
type conversation struct {
	turns []Turn
}

func newConversation(system, user string) *conversation {
	return &conversation{turns: []Turn{
		{Kind: TurnSystem, Text: system},
		{Kind: TurnUser, Text: user},
	}}
}

func (c *conversation) addAssistant(resp *unifiedllm.Response) {
	c.turns = append(c.turns, Turn{
		Kind:       TurnAssistant,
		Text:       resp.Text(),
		ToolCalls:  resp.ToolCalls(),
		Usage:      resp.Usage,
		ResponseID: resp.ID,
	})
}

func (c *conversation) addToolResults(results []ToolOutput) {
	c.turns = append(c.turns, Turn{Kind: TurnToolResults, Results: results})
}

func (c *conversation) addSteering(text string) {
	c.turns = append(c.turns, Turn{Kind: TurnSteering, Text: text})
}

// messages renders the history as model messages. Steering is sent as a user
// message so the model treats it as an instruction.
func (c *conversation) messages() []unifiedllm.Message {
	msgs := make([]unifiedllm.Message, 0, len(c.turns))
	for _, t := range c.turns {
		switch t.Kind {
		case TurnSystem:
			msgs = append(msgs, unifiedllm.SystemMessage(t.Text))
		case TurnUser, TurnSteering:
			msgs = append(msgs, unifiedllm.UserMessage(t.Text))
		case TurnAssistant:
			msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
			if t.Text != "" {
				msg.Content = append(msg.Content, unifiedllm.TextPart(t.Text))
			}
			for _, tc := range t.ToolCalls {
				msg.Content = append(msg.Content, unifiedllm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			msgs = append(msgs, msg)
		case TurnToolResults:
			for _, r := range t.Results {
				msgs = append(msgs, unifiedllm.ToolResultMessage(r.CallID, r.Name, r.Content, r.IsError))
			}
		}
	}
	return msgs
}
