package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/entityagent/entity"
)

// Code is a machine-readable tool failure code.
type Code string

const (
	CodeUnknownTool        Code = "UNKNOWN_TOOL"
	CodeInvalidArguments   Code = "INVALID_ARGUMENTS"
	CodeHandlerError       Code = "HANDLER_ERROR"
	CodeCancelled          Code = "CANCELLED"
	CodeConfirmationDenied Code = "CONFIRMATION_DENIED"
)

// Error is the failure record of a Result.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is the uniform outcome of one tool call.
type Result struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Error     *Error            `json:"error,omitempty"`
	Operation *entity.Operation `json:"entityOperation,omitempty"`
}

// OK returns a successful result carrying data.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// OKWithOperation returns a successful result that also asks the platform to
// apply op.
func OKWithOperation(data any, op entity.Operation) Result {
	return Result{Success: true, Data: data, Operation: &op}
}

// Fail returns a failed result.
func Fail(code Code, format string, args ...any) Result {
	return Result{Error: &Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// WithDetails attaches structured details to a failed result.
func (r Result) WithDetails(details map[string]any) Result {
	if r.Error != nil {
		e := *r.Error
		e.Details = details
		r.Error = &e
	}
	return r
}

// FailureCode returns the error code, or "" for successful results.
func (r Result) FailureCode() Code {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// Content renders the result as the text sent back to the model. The
// attached operation is for the platform and is not echoed.
func (r Result) Content() string {
	payload := struct {
		Success bool   `json:"success"`
		Data    any    `json:"data,omitempty"`
		Error   *Error `json:"error,omitempty"`
	}{r.Success, r.Data, r.Error}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"error":{"code":%q,"message":%q}}`,
			r.Success, CodeHandlerError, "result is not serializable: "+err.Error())
	}
	return string(b)
}

// DuplicateToolError is returned when a name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// InvalidToolError is returned when a definition breaks its own invariants.
type InvalidToolError struct {
	Name   string
	Reason string
}

func (e *InvalidToolError) Error() string {
	return fmt.Sprintf("invalid tool %q: %s", e.Name, e.Reason)
}

// UnknownToolsError reports allow-list entries that are not registered.
type UnknownToolsError struct {
	Names []string
}

func (e *UnknownToolsError) Error() string {
	return "unknown tools in allow-list: " + strings.Join(e.Names, ", ")
}
