package agentloop

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/operations"
)

// Input is one execution request.
type Input struct {
	ExecutionID  string `validate:"required"`
	SystemPrompt string `validate:"required"`
	// Payload holds the caller's input. "prompt" is required; other keys
	// are passed to the model alongside it.
	Payload map[string]any
	Entity  entity.Context
	// EnabledTools restricts the tools offered to the model. Nil enables
	// every registered tool; an empty non-nil slice enables none.
	EnabledTools []string
	Model        string
	Temperature  *float64 `validate:"omitempty,gte=0,lte=2"`
	// MaxIterations overrides the runtime limit when positive.
	MaxIterations int `validate:"gte=0"`
	// StructuredOutput asks the model for a JSON object answer shaped by
	// operations.OutputSchema.
	StructuredOutput bool
}

// Prompt returns the payload's prompt.
func (in Input) Prompt() string {
	s, _ := in.Payload["prompt"].(string)
	return s
}

// wireInput is the camelCase JSON form of Input.
type wireInput struct {
	ExecutionID      string              `json:"executionId"`
	SystemPrompt     string              `json:"systemPrompt"`
	Input            json.RawMessage     `json:"input"`
	Context          *entity.WireContext `json:"context"`
	EnabledTools     []string            `json:"enabledTools"`
	Model            string              `json:"model"`
	Temperature      *float64            `json:"temperature"`
	MaxIterations    int                 `json:"maxIterations"`
	StructuredOutput bool                `json:"structuredOutput"`
}

// DecodeInput parses a camelCase execution request:
//
//	{"executionId": "...", "systemPrompt": "...", "input": {"prompt": "..."},
//	 "context": {"userId": "...", "brandId": "...", ...}, "enabledTools": [...],
//	 "model": "...", "temperature": 0.3, "maxIterations": 5}
//
// A plain string "input" is taken as the prompt.
func DecodeInput(data []byte) (Input, error) {
	var raw wireInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Input{}, fmt.Errorf("decode execution input: %w", err)
	}

	in := Input{
		ExecutionID:      raw.ExecutionID,
		SystemPrompt:     raw.SystemPrompt,
		EnabledTools:     raw.EnabledTools,
		Model:            raw.Model,
		Temperature:      raw.Temperature,
		MaxIterations:    raw.MaxIterations,
		StructuredOutput: raw.StructuredOutput,
	}
	if len(raw.Input) > 0 {
		var prompt string
		if err := json.Unmarshal(raw.Input, &prompt); err == nil {
			in.Payload = map[string]any{"prompt": prompt}
		} else if err := json.Unmarshal(raw.Input, &in.Payload); err != nil {
			return Input{}, fmt.Errorf("decode execution input: input: %w", err)
		}
	}
	if raw.Context != nil {
		in.Entity = raw.Context.Context()
	}
	return in, nil
}

// Result is the outcome of Execute. The embedded envelope is what the
// platform receives; Err carries the typed failure for errors.As.
type Result struct {
	operations.Response
	Err error `json:"-"`
}

// Loop-level error codes.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeModelError     = "MODEL_ERROR"
	CodeModelTimeout   = "MODEL_TIMEOUT"
	CodeIterationLimit = "ITERATION_LIMIT_EXCEEDED"
)

// ValidationError reports input rejected before any model call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid execution input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ModelError reports a failed or interrupted model call.
type ModelError struct {
	Timeout   bool
	Iteration int
	Err       error
}

func (e *ModelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("model call %d timed out: %v", e.Iteration+1, e.Err)
	}
	return fmt.Sprintf("model call %d failed: %v", e.Iteration+1, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Code returns MODEL_TIMEOUT or MODEL_ERROR.
func (e *ModelError) Code() string {
	if e.Timeout {
		return CodeModelTimeout
	}
	return CodeModelError
}

// IterationLimitError reports a model that kept requesting tools.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("model still requested tools after %d iterations", e.Limit)
}

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// validate checks in against the fields the runtime depends on. Tool names
// are checked separately against the registry.
func validate(in Input) *ValidationError {
	if err := inputValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fieldName(fe.Field()), Reason: reason(fe), Err: err}
		}
		return &ValidationError{Field: "input", Reason: err.Error(), Err: err}
	}
	raw, ok := in.Payload["prompt"]
	if !ok || raw == nil {
		return &ValidationError{Field: "prompt", Reason: "is required"}
	}
	prompt, ok := raw.(string)
	if !ok {
		return &ValidationError{Field: "prompt", Reason: fmt.Sprintf("must be a string, got %T", raw)}
	}
	if strings.TrimSpace(prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "must not be blank"}
	}
	return nil
}

func fieldName(goName string) string {
	switch goName {
	case "ExecutionID":
		return "executionId"
	case "SystemPrompt":
		return "systemPrompt"
	case "MaxIterations":
		return "maxIterations"
	case "Temperature":
		return "temperature"
	default:
		return goName
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
