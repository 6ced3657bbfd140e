package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps gollm.LLM instances and implements ProviderAdapter.
// gollm exposes a single prompt per call, so the conversation is flattened
// into the system prompt plus a transcript, and tool calls are recovered from
// the JSON the model writes back.
//
// Request options are set on the LLM itself, so each in-flight call holds an
// instance of its own. Idle instances are reused; at most the configured
// concurrency exist at once.
type GollmAdapter struct {
	provider    string
	model       string
	temperature float64
	maxTokens   int
	counter     TokenCounter

	newLLM func() (gollm.LLM, error)
	idle   chan gollm.LLM
	slots  chan struct{}
}

// DefaultGollmConcurrency is the number of concurrent calls an adapter
// serves before callers wait.
const DefaultGollmConcurrency = 4

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	counter     TokenCounter
	concurrency int
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default completion limit.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithTokenCounter sets how usage is estimated. gollm reports no usage, so
// every response carries an estimate. Defaults to CountTokens.
func WithTokenCounter(counter TokenCounter) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		if counter != nil {
			c.counter = counter
		}
	}
}

// WithConcurrency caps the calls served at once. Values below one are
// ignored.
func WithConcurrency(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a GollmAdapter for provider. When apiKey is empty
// gollm reads the provider's key from the environment.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   2000,
		temperature: 0.3,
		counter:     CountTokens,
		concurrency: DefaultGollmConcurrency,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // RetryMiddleware owns retries.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	a := newGollmAdapter(provider, model, cfg, func() (gollm.LLM, error) {
		return gollm.NewLLM(gollmOpts...)
	})
	// The first instance is built eagerly so configuration errors surface here.
	llm, err := a.newLLM()
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}
	a.slots <- struct{}{}
	a.idle <- llm
	return a, nil
}

func newGollmAdapter(provider, model string, cfg *gollmAdapterConfig, newLLM func() (gollm.LLM, error)) *GollmAdapter {
	return &GollmAdapter{
		provider:    provider,
		model:       model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		counter:     cfg.counter,
		newLLM:      newLLM,
		idle:        make(chan gollm.LLM, cfg.concurrency),
		slots:       make(chan struct{}, cfg.concurrency),
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Model returns the adapter's default model.
func (a *GollmAdapter) Model() string {
	return a.model
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	llm, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	a.applyRequestOptions(llm, req)
	text, err := llm.Generate(ctx, prompt)
	a.idle <- llm
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx)
		}
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// acquire returns an idle LLM, creating one while under the concurrency cap
// and otherwise waiting for a release or for ctx to end.
func (a *GollmAdapter) acquire(ctx context.Context) (gollm.LLM, error) {
	if ctx.Err() != nil {
		return nil, interrupted(ctx)
	}
	select {
	case llm := <-a.idle:
		return llm, nil
	default:
	}
	select {
	case llm := <-a.idle:
		return llm, nil
	case a.slots <- struct{}{}:
		llm, err := a.newLLM()
		if err != nil {
			<-a.slots
			return nil, &ConfigurationError{SDKError{Message: "create gollm LLM for provider " + a.provider, Cause: err}}
		}
		return llm, nil
	case <-ctx.Done():
		return nil, interrupted(ctx)
	}
}

func interrupted(ctx context.Context) error {
	return &AbortError{SDKError{Message: "model call interrupted", Cause: ctx.Err()}}
}

// SupportsToolChoice reports whether the adapter honors a tool choice mode.
func (a *GollmAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	case "named":
		return a.provider == "openai"
	default:
		return false
	}
}

// translateRequest flattens a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) (*gollm.Prompt, error) {
	var system []string
	var transcript []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.TextContent())
		case RoleUser:
			transcript = append(transcript, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				transcript = append(transcript, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				transcript = append(transcript, fmt.Sprintf("[Tool Call %s]: %s(%s)", tc.ID, tc.Name, tc.Arguments))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				label := "Tool Result"
				if part.ToolResult.IsError {
					label = "Tool Error"
				}
				transcript = append(transcript, fmt.Sprintf("[%s %s]: %s", label, part.ToolResult.ToolCallID, part.ToolResult.Content))
			}
		default:
			return nil, &InvalidRequestError{ProviderError{
				SDKError: SDKError{Message: fmt.Sprintf("unsupported message role %q", msg.Role)},
				Provider: a.provider,
			}}
		}
	}

	if format := responseFormatInstruction(req.ResponseFormat); format != "" {
		system = append(system, format)
	}

	promptText := strings.Join(transcript, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(system) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(strings.Join(system, "\n\n")), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		choice := req.ToolChoice.Mode
		if choice == "named" {
			choice = req.ToolChoice.ToolName
		}
		promptOpts = append(promptOpts, gollm.WithToolChoice(choice))
	}

	return gollm.NewPrompt(promptText, promptOpts...), nil
}

func responseFormatInstruction(rf *ResponseFormat) string {
	if rf == nil {
		return ""
	}
	switch rf.Type {
	case "json":
		return "Respond with a single JSON object and nothing else."
	case "json_schema":
		schema, err := json.MarshalIndent(rf.JSONSchema, "", "  ")
		if err != nil || len(rf.JSONSchema) == 0 {
			return "Respond with a single JSON object and nothing else."
		}
		return "Respond with a single JSON object that conforms to this JSON schema, and nothing else:\n" + string(schema)
	default:
		return ""
	}
}

// applyRequestOptions sets per-request parameters on llm, restoring the
// adapter defaults for those the request leaves unset.
func (a *GollmAdapter) applyRequestOptions(llm gollm.LLM, req Request) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	llm.SetOption("model", model)

	temperature := a.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	llm.SetOption("temperature", temperature)

	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	llm.SetOption("max_tokens", maxTokens)
}

// buildResponse constructs a Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, remaining := parseToolCalls(text)
	var parts []ContentPart
	if remaining != "" {
		parts = append(parts, TextPart(remaining))
	}
	for _, tc := range calls {
		parts = append(parts, ContentPart{Kind: ContentToolCall, ToolCall: &tc})
	}
	if len(parts) == 0 {
		parts = []ContentPart{TextPart(text)}
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	counter := a.counter
	if counter == nil {
		counter = ApproxTokens
	}
	input := MessageTokens(counter, model, req.Messages)
	output := counter(model, text)

	return &Response{
		ID:           "resp_" + uuid.NewString()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
			Estimated:    true,
		},
	}
}

// parseToolCalls recovers tool calls that gollm returns as JSON text, either
// an OpenAI-style {"tool_calls": [...]} object or a bare [{"name": ...}]
// array. It returns the calls and the text preceding the JSON.
func parseToolCalls(text string) ([]ToolCallData, string) {
	start := strings.Index(text, `{"tool_calls"`)
	var keys []string
	if start >= 0 {
		keys = []string{"tool_calls"}
	} else {
		start = strings.Index(text, `[{"name"`)
	}
	if start < 0 {
		return nil, text
	}

	var calls []ToolCallData
	_, err := jsonparser.ArrayEach([]byte(text[start:]), func(value []byte, typ jsonparser.ValueType, _ int, _ error) {
		if typ != jsonparser.Object {
			return
		}
		name, _ := jsonparser.GetString(value, "function", "name")
		if name == "" {
			name, _ = jsonparser.GetString(value, "name")
		}
		if name == "" {
			return
		}
		id, _ := jsonparser.GetString(value, "id")
		if id == "" {
			id = "call_" + uuid.NewString()[:8]
		}
		calls = append(calls, ToolCallData{ID: id, Name: name, Arguments: toolArguments(value)})
	}, keys...)
	if err != nil || len(calls) == 0 {
		return nil, text
	}
	return calls, strings.TrimSpace(text[:start])
}

// toolArguments returns the call's arguments as a JSON object, accepting the
// object inline or encoded as a string.
func toolArguments(call []byte) json.RawMessage {
	for _, path := range [][]string{{"function", "arguments"}, {"arguments"}} {
		value, typ, _, err := jsonparser.Get(call, path...)
		if err != nil {
			continue
		}
		switch typ {
		case jsonparser.Object:
			return json.RawMessage(slices.Clone(value))
		case jsonparser.String:
			s, err := jsonparser.ParseString(value)
			if err == nil && json.Valid([]byte(s)) {
				return json.RawMessage(s)
			}
		}
	}
	return json.RawMessage("{}")
}

// translateError converts a gollm error into the client's error kinds.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	pe := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	lower := strings.ToLower(msg)
	has := func(subs ...string) bool {
		return slices.ContainsFunc(subs, func(s string) bool { return strings.Contains(lower, s) })
	}
	switch {
	case has("401", "403", "unauthorized", "forbidden", "invalid api key", "invalid key"):
		return &AuthenticationError{pe(401, false)}
	case has("404", "not found"):
		return &NotFoundError{pe(404, false)}
	case has("429", "rate limit"):
		return &RateLimitError{pe(429, true)}
	case has("context length", "too many tokens", "maximum context"):
		return &ContextLengthError{pe(413, false)}
	case has("500", "502", "503", "internal server", "overloaded"):
		return &ServerError{pe(500, true)}
	case has("timeout", "deadline exceeded"):
		return &RequestTimeoutError{SDKError{Message: msg, Cause: err}}
	case has("content filter", "safety"):
		return &ContentFilterError{pe(0, false)}
	case has("400", "invalid request"):
		return &InvalidRequestError{pe(400, false)}
	default:
		p := pe(0, true)
		return &p
	}
}
