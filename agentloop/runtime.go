package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/martinemde/entityagent/injector"
	"github.com/martinemde/entityagent/operations"
	"github.com/martinemde/entityagent/tools"
	"github.com/martinemde/entityagent/unifiedllm"
)

const tracerName = "github.com/martinemde/entityagent/agentloop"

// DefaultMaxIterations bounds model round-trips that request tools.
const DefaultMaxIterations = 10

// contextWarnRatio is the share of the model's context window above which
// a warning is emitted.
const contextWarnRatio = 0.8

// ModelClient is the model boundary. *unifiedllm.Client satisfies it.
type ModelClient interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// Runtime runs the call-model/run-tools loop. It holds only configuration:
// every Execute call keeps its state on its own stack, so one Runtime can
// serve concurrent executions.
type Runtime struct {
	model     ModelClient
	registry  *tools.Registry
	executor  *tools.Executor
	injector  *injector.Injector
	extractor *operations.Extractor
	formatter operations.Formatter

	logger   *slog.Logger
	tp       trace.TracerProvider
	tracer   trace.Tracer
	observer Observer

	maxIterations  int
	maxTokens      *int
	parallelTools  bool
	parallelLimit  int
	loopDetection  bool
	loopWindow     int
	outputLimits   OutputLimits
	tokenCounter   unifiedllm.TokenCounter
	executorOpts   []tools.ExecutorOption
	executorPreset bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider for execution and tool spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runtime) {
		if tp != nil {
			r.tp = tp
		}
	}
}

// WithObserver sets the receiver of runtime events.
func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithMaxIterations sets the default iteration limit.
func WithMaxIterations(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithMaxTokens caps the completion length of each model call.
func WithMaxTokens(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxTokens = &n
		}
	}
}

// WithParallelIndependentTools runs the calls of one step concurrently, at
// most limit at a time, when every call in the step targets an Independent
// tool. Results are still reported in emission order. A limit of zero
// means no limit.
func WithParallelIndependentTools(limit int) Option {
	return func(r *Runtime) {
		r.parallelTools = true
		r.parallelLimit = limit
	}
}

// WithLoopDetection enables or disables the steering note added when the
// latest window tool calls repeat. Enabled by default with
// DefaultLoopWindow.
func WithLoopDetection(enabled bool, window int) Option {
	return func(r *Runtime) {
		r.loopDetection = enabled
		if window > 0 {
			r.loopWindow = window
		}
	}
}

// WithOutputLimits sets how tool output is truncated before it is sent back
// to the model.
func WithOutputLimits(l OutputLimits) Option {
	return func(r *Runtime) {
		r.outputLimits = l
	}
}

// WithTokenCounter sets the estimator used for context-window warnings.
// Defaults to unifiedllm.ApproxTokens.
func WithTokenCounter(c unifiedllm.TokenCounter) Option {
	return func(r *Runtime) {
		if c != nil {
			r.tokenCounter = c
		}
	}
}

// WithInjector sets the context injector. Defaults to injector.New().
func WithInjector(i *injector.Injector) Option {
	return func(r *Runtime) {
		if i != nil {
			r.injector = i
		}
	}
}

// WithExtractor sets the operation extractor.
func WithExtractor(x *operations.Extractor) Option {
	return func(r *Runtime) {
		if x != nil {
			r.extractor = x
		}
	}
}

// WithExecutor replaces the executor built from the registry. The
// executor's registry is used for schemas and validation.
func WithExecutor(e *tools.Executor) Option {
	return func(r *Runtime) {
		if e != nil {
			r.executor = e
			r.executorPreset = true
		}
	}
}

// WithExecutorOptions passes options to the executor the runtime builds.
// Ignored when WithExecutor is used.
func WithExecutorOptions(opts ...tools.ExecutorOption) Option {
	return func(r *Runtime) {
		r.executorOpts = append(r.executorOpts, opts...)
	}
}

// New creates a Runtime that calls model and resolves tools in registry.
func New(model ModelClient, registry *tools.Registry, opts ...Option) *Runtime {
	r := &Runtime{
		model:         model,
		registry:      registry,
		injector:      injector.New(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tp:            otel.GetTracerProvider(),
		observer:      nopObserver{},
		maxIterations: DefaultMaxIterations,
		loopDetection: true,
		loopWindow:    DefaultLoopWindow,
		outputLimits:  DefaultOutputLimits(),
		tokenCounter:  unifiedllm.ApproxTokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = tools.NewRegistry()
	}
	if r.executorPreset {
		r.registry = r.executor.Registry()
	} else {
		base := []tools.ExecutorOption{
			tools.WithExecutorLogger(r.logger),
			tools.WithExecutorTracerProvider(r.tp),
		}
		r.executor = tools.NewExecutor(r.registry, append(base, r.executorOpts...)...)
	}
	if r.extractor == nil {
		r.extractor = operations.NewExtractor(operations.WithExtractorLogger(r.logger))
	}
	r.tracer = r.tp.Tracer(tracerName)
	return r
}

// Registry returns the registry tools are resolved against.
func (r *Runtime) Registry() *tools.Registry {
	return r.registry
}

// Execute runs one execution to a terminal state. Classified failures are
// reported in the Result, never as a panic or a Go error: Result.Err holds a
// *ValidationError, *ModelError or *IterationLimitError.
func (r *Runtime) Execute(ctx context.Context, in Input) *Result {
	ctx, span := r.tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String("agent.execution_id", in.ExecutionID),
		attribute.String("llm.model", in.Model),
	))
	defer span.End()

	x := &execution{
		rt:     r,
		in:     in,
		start:  time.Now(),
		logger: r.logger.With("execution_id", in.ExecutionID),
		calls:  []operations.ToolCallRecord{},
	}
	x.emit(EventExecutionStart, map[string]any{"model": in.Model})
	x.logger.Info("execution start", "model", in.Model, "tools_enabled", enabledCount(in.EnabledTools))

	res := x.run(ctx)

	span.SetAttributes(
		attribute.Int("agent.iterations", x.iterations),
		attribute.Int("agent.tool_calls", len(res.ToolCalls)),
		attribute.Int("agent.operations", len(res.Operations)),
		attribute.Int("llm.usage.total_tokens", res.TokensUsed.Total),
		attribute.Bool("agent.success", res.Success),
	)
	end := map[string]any{"success": res.Success, "duration_ms": res.DurationMs}
	if res.Error != nil {
		span.SetAttributes(attribute.String("agent.error_code", res.Error.Code))
		span.SetStatus(codes.Error, res.Error.Message)
		end["code"] = res.Error.Code
		x.logger.Warn("execution failed", "code", res.Error.Code, "error", res.Error.Message,
			"iterations", x.iterations, "duration_ms", res.DurationMs)
	} else {
		x.logger.Info("execution end", "iterations", x.iterations, "tool_calls", len(res.ToolCalls),
			"operations", len(res.Operations), "tokens", res.TokensUsed.Total, "duration_ms", res.DurationMs)
	}
	x.emit(EventExecutionEnd, end)
	return res
}

func enabledCount(enabled []string) any {
	if enabled == nil {
		return "all"
	}
	return len(enabled)
}

// execution is the state of one Execute call.
type execution struct {
	rt     *Runtime
	in     Input
	start  time.Time
	logger *slog.Logger

	conv       *conversation
	calls      []operations.ToolCallRecord
	results    []tools.Result
	usage      operations.TokenUsage
	iterations int
	warned     bool
}

func (x *execution) run(ctx context.Context) *Result {
	r := x.rt

	// INIT
	if verr := validate(x.in); verr != nil {
		return x.fail(CodeValidation, verr, map[string]any{"field": verr.Field})
	}
	schema, err := r.registry.ModelSchema(x.in.EnabledTools)
	if err != nil {
		verr := &ValidationError{Field: "enabledTools", Reason: err.Error(), Err: err}
		details := map[string]any{"field": verr.Field}
		var unknown *tools.UnknownToolsError
		if errors.As(err, &unknown) {
			details["unknown"] = unknown.Names
		}
		return x.fail(CodeValidation, verr, details)
	}
	user, err := userMessage(x.in.Payload)
	if err != nil {
		verr := &ValidationError{Field: "input", Reason: err.Error(), Err: err}
		return x.fail(CodeValidation, verr, map[string]any{"field": verr.Field})
	}
	x.conv = newConversation(injector.Append(x.in.SystemPrompt, r.injector.Build(x.in.Entity)), user)

	limit := r.maxIterations
	if x.in.MaxIterations > 0 {
		limit = x.in.MaxIterations
	}

	for {
		// CALL_MODEL
		if err := ctx.Err(); err != nil {
			return x.failModel(&ModelError{Timeout: true, Iteration: x.iterations, Err: err})
		}
		req := x.request(schema)
		x.emit(EventModelRequest, map[string]any{"messages": len(req.Messages), "tools": len(req.Tools)})

		resp, err := r.model.Complete(ctx, req)
		if err != nil {
			timeout := unifiedllm.IsTimeout(err) || ctx.Err() != nil
			return x.failModel(&ModelError{Timeout: timeout, Iteration: x.iterations, Err: err})
		}
		if resp == nil {
			return x.failModel(&ModelError{Iteration: x.iterations, Err: errors.New("model returned no response")})
		}
		x.usage = x.usage.Add(operations.TokenUsage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.TotalTokens,
		})
		calls := withCallIDs(resp.ToolCalls())
		resp.Message = assistantMessage(resp.Text(), calls)
		x.conv.addAssistant(resp)
		x.emit(EventModelResponse, map[string]any{
			"text":          resp.Text(),
			"tool_calls":    len(calls),
			"finish_reason": resp.FinishReason.Reason,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		})
		x.checkContextUsage(req.Model)

		if len(calls) == 0 {
			return x.finalize(resp.Text())
		}

		// RUN_TOOLS
		x.iterations++
		outputs, err := x.runTools(ctx, calls)
		x.conv.addToolResults(outputs)
		if err != nil {
			return x.failModel(&ModelError{Timeout: true, Iteration: x.iterations, Err: err})
		}
		if x.iterations >= limit {
			return x.fail(CodeIterationLimit, &IterationLimitError{Limit: limit},
				map[string]any{"maxIterations": limit, "toolCalls": len(x.calls)})
		}
		x.detectLoop()
	}
}

// request assembles the model request for the current conversation.
func (x *execution) request(schema []unifiedllm.ToolDefinition) unifiedllm.Request {
	req := unifiedllm.Request{
		Model:       x.in.Model,
		Messages:    x.conv.messages(),
		Temperature: x.in.Temperature,
		MaxTokens:   x.rt.maxTokens,
		Metadata:    map[string]string{"execution_id": x.in.ExecutionID},
	}
	if len(schema) > 0 {
		req.Tools = schema
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}
	if x.in.StructuredOutput {
		req.ResponseFormat = &unifiedllm.ResponseFormat{Type: "json"}
		if s, err := operations.OutputSchema(); err == nil {
			req.ResponseFormat = &unifiedllm.ResponseFormat{Type: "json_schema", JSONSchema: s}
		}
	}
	return req
}

// userMessage renders the payload: the prompt alone when it is the only
// key, otherwise the whole payload as indented JSON.
func userMessage(payload map[string]any) (string, error) {
	if len(payload) == 1 {
		if prompt, ok := payload["prompt"].(string); ok {
			return prompt, nil
		}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("payload is not encodable: %w", err)
	}
	return string(data), nil
}

// withCallIDs fills missing call ids so results can be correlated.
func withCallIDs(calls []unifiedllm.ToolCallData) []unifiedllm.ToolCallData {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()[:8]
		}
		if len(calls[i].Arguments) == 0 {
			calls[i].Arguments = json.RawMessage("{}")
		}
	}
	return calls
}

func assistantMessage(text string, calls []unifiedllm.ToolCallData) unifiedllm.Message {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	if text != "" {
		msg.Content = append(msg.Content, unifiedllm.TextPart(text))
	}
	for _, c := range calls {
		msg.Content = append(msg.Content, unifiedllm.ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return msg
}

// runTools executes one step's calls. Results are recorded in emission
// order. It stops at the first call that finds ctx done and returns the
// context error; calls already made stay recorded.
func (x *execution) runTools(ctx context.Context, calls []unifiedllm.ToolCallData) ([]ToolOutput, error) {
	results := make([]tools.Result, len(calls))
	ran := len(calls)
	var cancelled error

	if x.concurrent(calls) {
		var g errgroup.Group
		if x.rt.parallelLimit > 0 {
			g.SetLimit(x.rt.parallelLimit)
		}
		for i, call := range calls {
			if err := ctx.Err(); err != nil {
				ran, cancelled = i, err
				break
			}
			g.Go(func() error {
				results[i] = x.callTool(ctx, call)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, call := range calls {
			if err := ctx.Err(); err != nil {
				ran, cancelled = i, err
				break
			}
			results[i] = x.callTool(ctx, call)
		}
	}

	outputs := make([]ToolOutput, 0, ran)
	for i, call := range calls[:ran] {
		res := results[i]
		x.results = append(x.results, res)
		x.calls = append(x.calls, x.rt.formatter.ToolCall(call.ID, call.Name, call.Arguments, res))
		outputs = append(outputs, ToolOutput{
			CallID:  call.ID,
			Name:    call.Name,
			Content: x.rt.outputLimits.apply(call.Name, res.Content()),
			IsError: !res.Success,
		})
	}
	if cancelled != nil {
		return outputs, fmt.Errorf("cancelled before tool call %d of %d: %w", ran+1, len(calls), cancelled)
	}
	return outputs, nil
}

// concurrent reports whether calls may run in parallel: the policy is on
// and every call targets a registered Independent tool.
func (x *execution) concurrent(calls []unifiedllm.ToolCallData) bool {
	if !x.rt.parallelTools || len(calls) < 2 {
		return false
	}
	for _, c := range calls {
		def, ok := x.rt.registry.Get(c.Name)
		if !ok || !def.Independent || !x.enabled(c.Name) {
			return false
		}
	}
	return true
}

func (x *execution) enabled(name string) bool {
	return x.in.EnabledTools == nil || slices.Contains(x.in.EnabledTools, name)
}

// callTool runs one call through the executor. Tools outside the allow-list
// are reported as unknown: the model was never offered them.
func (x *execution) callTool(ctx context.Context, call unifiedllm.ToolCallData) tools.Result {
	x.emit(EventToolCallStart, map[string]any{"tool": call.Name, "call_id": call.ID})

	var res tools.Result
	if !x.enabled(call.Name) {
		res = tools.Fail(tools.CodeUnknownTool, "tool %s is not enabled for this execution", call.Name).
			WithDetails(map[string]any{"tool": call.Name, "available": x.in.EnabledTools})
	} else {
		res = x.rt.executor.Execute(ctx, call.Name, call.Arguments, tools.CallContext{
			ExecutionID: x.in.ExecutionID,
			ToolCallID:  call.ID,
			Entity:      x.in.Entity,
		})
	}

	end := map[string]any{"tool": call.Name, "call_id": call.ID, "success": res.Success, "output": res.Content()}
	if code := res.FailureCode(); code != "" {
		end["code"] = string(code)
	}
	x.emit(EventToolCallEnd, end)
	return res
}

// detectLoop adds a steering note when recent tool calls repeat.
func (x *execution) detectLoop() {
	if !x.rt.loopDetection || !DetectLoop(x.conv.turns, x.rt.loopWindow) {
		return
	}
	note := fmt.Sprintf("The last %d tool calls repeat the same pattern without progress. "+
		"Change approach or answer with what you have.", x.rt.loopWindow)
	x.conv.addSteering(note)
	x.logger.Warn("tool call loop detected", "window", x.rt.loopWindow, "iteration", x.iterations)
	x.emit(EventLoopDetection, map[string]any{"message": note})
}

// checkContextUsage warns once when the conversation nears the model's
// context window. Unknown models are skipped.
func (x *execution) checkContextUsage(model string) {
	if x.warned {
		return
	}
	window, ok := unifiedllm.ContextWindow(model)
	if !ok {
		return
	}
	used := unifiedllm.MessageTokens(x.rt.tokenCounter, model, x.conv.messages())
	if float64(used) <= float64(window)*contextWarnRatio {
		return
	}
	x.warned = true
	pct := used * 100 / window
	x.logger.Warn("context window nearly full", "model", model, "tokens", used, "window", window, "percent", pct)
	x.emit(EventWarning, map[string]any{
		"message": fmt.Sprintf("Context usage at about %d%% of the %s context window", pct, model),
		"tokens":  used,
		"window":  window,
	})
}

// finalize parses the final answer and extracts operations.
func (x *execution) finalize(text string) *Result {
	output := operations.ParseOutput(text)
	extraction := x.rt.extractor.Extract(output, x.results, operations.Scope{
		BrandID:        x.in.Entity.BrandID,
		OrganizationID: x.in.Entity.OrganizationID,
		ExecutionID:    x.in.ExecutionID,
	})
	resp := x.rt.formatter.FormatExtraction(extraction, x.in.ExecutionID).
		WithStats(x.calls, x.usage, time.Since(x.start))
	return &Result{Response: resp}
}

func (x *execution) failModel(err *ModelError) *Result {
	return x.fail(err.Code(), err, map[string]any{"iteration": err.Iteration + 1})
}

// fail builds a terminal failure. Tool calls made so far and token usage
// are kept for diagnostics.
func (x *execution) fail(code string, err error, details map[string]any) *Result {
	resp := x.rt.formatter.Failure(x.in.ExecutionID, operations.ErrorInfo{
		Code:    code,
		Message: err.Error(),
		Details: details,
	}).WithStats(x.calls, x.usage, time.Since(x.start))
	return &Result{Response: resp, Err: err}
}

func (x *execution) emit(kind EventKind, data map[string]any) {
	x.rt.observer.Observe(Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		ExecutionID: x.in.ExecutionID,
		Iteration:   x.iterations,
		Data:        data,
	})
}
