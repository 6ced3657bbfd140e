// Package testkit holds deterministic doubles for runtime tests.
package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinemde/entityagent/unifiedllm"
)

// Step configures one model turn in a scripted sequence. Wait, when set,
// blocks the call until it is closed or ctx is done.
type Step struct {
	Response unifiedllm.Response
	Err      error
	Wait     <-chan struct{}
}

// ScriptedModel is a deterministic model client. It replays its steps in
// order and records every request it receives.
type ScriptedModel struct {
	mu       sync.Mutex
	index    int
	steps    []Step
	requests []unifiedllm.Request
}

// NewScriptedModel returns a model that replays steps.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &ScriptedModel{steps: cloned}
}

// Complete returns the next scripted step. An exhausted script is an error.
func (m *ScriptedModel) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.index >= len(m.steps) {
		n := m.index + 1
		m.mu.Unlock()
		return nil, fmt.Errorf("script exhausted at step %d", n)
	}
	step := m.steps[m.index]
	m.index++
	m.mu.Unlock()

	if step.Wait != nil {
		select {
		case <-step.Wait:
		case <-ctx.Done():
			return nil, &unifiedllm.AbortError{SDKError: unifiedllm.SDKError{Message: "request aborted", Cause: ctx.Err()}}
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := step.Response
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if resp.Message.Role == "" {
		resp.Message.Role = unifiedllm.RoleAssistant
	}
	return &resp, nil
}

// Calls returns the number of requests received.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the requests received, oldest first.
func (m *ScriptedModel) Requests() []unifiedllm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]unifiedllm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request.
func (m *ScriptedModel) LastRequest() unifiedllm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return unifiedllm.Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Text returns a step answering with text.
func Text(text string, usage unifiedllm.Usage) Step {
	return Step{Response: unifiedllm.Response{
		ID:           "resp_text",
		Message:      unifiedllm.AssistantMessage(text),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
		Usage:        usage,
	}}
}

// Call is one tool call of a scripted response.
type Call struct {
	ID   string
	Name string
	Args any
}

// ToolCalls returns a step requesting calls. Args are JSON-encoded; a
// json.RawMessage or string is used as is.
func ToolCalls(usage unifiedllm.Usage, calls ...Call) Step {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	for _, c := range calls {
		msg.Content = append(msg.Content, unifiedllm.ToolCallPart(c.ID, c.Name, encodeArgs(c.Args)))
	}
	return Step{Response: unifiedllm.Response{
		ID:           "resp_tools",
		Message:      msg,
		FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
		Usage:        usage,
	}}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Usage builds a usage record with a computed total.
func Usage(input, output int) unifiedllm.Usage {
	return unifiedllm.Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

func encodeArgs(args any) json.RawMessage {
	switch a := args.(type) {
	case nil:
		return json.RawMessage("{}")
	case json.RawMessage:
		return a
	case string:
		return json.RawMessage(a)
	default:
		b, err := json.Marshal(a)
		if err != nil {
			panic(fmt.Sprintf("testkit: encode tool arguments: %v", err))
		}
		return b
	}
}
