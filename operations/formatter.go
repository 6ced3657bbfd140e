package operations

import (
	"encoding/json"
	"time"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

// TokenUsage counts tokens across every model call of an execution.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add returns the sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:     u.Prompt + o.Prompt,
		Completion: u.Completion + o.Completion,
		Total:      u.Total + o.Total,
	}
}

// ToolCallRecord is one model-requested tool call and its outcome.
type ToolCallRecord struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Arguments string       `json:"arguments"`
	Result    tools.Result `json:"result"`
}

// ErrorInfo describes why an execution failed.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the envelope returned to the platform.
type Response struct {
	Success     bool               `json:"success"`
	Output      Output             `json:"output"`
	Operations  []entity.Operation `json:"entityOperations"`
	ExecutionID string             `json:"executionId"`
	ToolCalls   []ToolCallRecord   `json:"toolCalls"`
	TokensUsed  TokenUsage         `json:"tokensUsed"`
	DurationMs  int64              `json:"durationMs"`
	Error       *ErrorInfo         `json:"error,omitempty"`
	Diagnostics *Diagnostics       `json:"diagnostics,omitempty"`
}

// Formatter assembles Responses. It is stateless.
type Formatter struct{}

// Format builds a successful response.
func (Formatter) Format(output Output, ops []entity.Operation, executionID string) Response {
	if ops == nil {
		ops = []entity.Operation{}
	}
	return Response{
		Success:     true,
		Output:      output,
		Operations:  ops,
		ExecutionID: executionID,
		ToolCalls:   []ToolCallRecord{},
	}
}

// FormatExtraction builds a successful response from an extraction,
// attaching diagnostics only when something was skipped.
func (f Formatter) FormatExtraction(x Extraction, executionID string) Response {
	resp := f.Format(x.Output, x.Operations, executionID)
	if !x.Diagnostics.Empty() {
		d := x.Diagnostics
		resp.Diagnostics = &d
	}
	return resp
}

// Failure builds a failed response. Failed executions carry no operations.
func (Formatter) Failure(executionID string, info ErrorInfo) Response {
	return Response{
		Success:     false,
		Operations:  []entity.Operation{},
		ExecutionID: executionID,
		ToolCalls:   []ToolCallRecord{},
		Error:       &info,
	}
}

// ToolCall builds the record of one call.
func (Formatter) ToolCall(id, name string, arguments json.RawMessage, result tools.Result) ToolCallRecord {
	args := string(arguments)
	if args == "" {
		args = "{}"
	}
	return ToolCallRecord{ID: id, Name: name, Arguments: args, Result: result}
}

// WithStats fills the per-execution counters.
func (r Response) WithStats(calls []ToolCallRecord, usage TokenUsage, elapsed time.Duration) Response {
	if calls == nil {
		calls = []ToolCallRecord{}
	}
	r.ToolCalls = calls
	r.TokensUsed = usage
	r.DurationMs = elapsed.Milliseconds()
	return r
}
