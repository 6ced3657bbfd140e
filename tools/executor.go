package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const tracerName = "github.com/martinemde/entityagent/tools"

// ApprovalRequest describes a call that needs confirmation.
type ApprovalRequest struct {
	Tool        string
	ToolCallID  string
	ExecutionID string
	Args        Args
}

// Approver decides whether a confirmation-required tool may run.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// Executor runs registered tools and normalizes every outcome into a Result.
// It keeps no per-call state and is safe for concurrent use.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	approver Approver
	timeout  time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger for tool start/end records.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorTracerProvider sets the tracer provider for tool spans.
func WithExecutorTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithApprover sets the approver consulted for confirmation-required tools.
// Without one, such tools run unconditionally.
func WithApprover(a Approver) ExecutorOption {
	return func(e *Executor) {
		e.approver = a
	}
}

// WithToolTimeout bounds each handler invocation. Zero means no bound
// beyond the caller's context.
func WithToolTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an Executor over reg.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the executor resolves names against.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute resolves name, validates arguments, and invokes the handler. It
// never panics and never returns an error: unknown tools, bad arguments and
// handler failures all come back as failed Results so the model can react.
func (e *Executor) Execute(ctx context.Context, name string, arguments json.RawMessage, call CallContext) Result {
	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", call.ToolCallID),
		attribute.String("agent.execution_id", call.ExecutionID),
	))
	defer span.End()

	logger := e.logger.With("tool", name, "call_id", call.ToolCallID, "execution_id", call.ExecutionID)
	start := time.Now()
	res := e.execute(ctx, name, arguments, call, logger)
	dur := time.Since(start)

	span.SetAttributes(attribute.Bool("tool.success", res.Success))
	if !res.Success && res.Error != nil {
		span.SetStatus(codes.Error, res.Error.Message)
		span.SetAttributes(attribute.String("tool.error_code", string(res.Error.Code)))
		logger.Warn("tool failed", "duration", dur, "code", res.Error.Code, "error", res.Error.Message)
	} else {
		logger.Info("tool end", "duration", dur, "operation", res.Operation != nil)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, name string, arguments json.RawMessage, call CallContext, logger *slog.Logger) Result {
	if err := ctx.Err(); err != nil {
		return Fail(CodeCancelled, "tool %s not started: %v", name, err)
	}

	t, ok := e.registry.lookup(name)
	if !ok {
		return Fail(CodeUnknownTool, "unknown tool: %s", name).
			WithDetails(map[string]any{"tool": name, "available": e.registry.Names()})
	}

	args, failure := decodeArguments(t, arguments)
	if failure != nil {
		return *failure
	}

	if t.def.RequiresConfirmation && e.approver != nil {
		approved, err := e.approver.Approve(ctx, ApprovalRequest{
			Tool:        name,
			ToolCallID:  call.ToolCallID,
			ExecutionID: call.ExecutionID,
			Args:        args,
		})
		if err != nil {
			return Fail(CodeHandlerError, "approval for %s failed: %v", name, err)
		}
		if !approved {
			return Fail(CodeConfirmationDenied, "call to %s was not approved", name)
		}
	}

	if call.Logger == nil {
		call.Logger = logger
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger.Info("tool start")
	return invoke(ctx, t.def.Handler, args, call)
}

// invoke runs the handler, converting errors and panics into HANDLER_ERROR.
func invoke(ctx context.Context, h Handler, args Args, call CallContext) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail(CodeHandlerError, "tool panicked: %v", p)
		}
	}()
	out, err := h(ctx, args, call)
	if err != nil {
		return Fail(CodeHandlerError, "%s", err.Error())
	}
	if !out.Success && out.Error == nil {
		return Fail(CodeHandlerError, "tool reported failure without an error")
	}
	return out
}

// decodeArguments parses the raw arguments, checks required parameters in
// declaration order, validates against the compiled schema and applies
// defaults. A null optional parameter counts as absent.
func decodeArguments(t *registeredTool, raw json.RawMessage) (Args, *Result) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		res := Fail(CodeInvalidArguments, "arguments must be a JSON object: %v", err)
		return nil, &res
	}
	if args == nil {
		args = Args{}
	}

	for _, p := range t.def.Parameters {
		if p.Required && !args.Has(p.Name) {
			res := Fail(CodeInvalidArguments, "missing required parameter: %s", p.Name).
				WithDetails(map[string]any{"field": p.Name})
			return nil, &res
		}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		res := Fail(CodeInvalidArguments, "arguments are not valid JSON: %v", err)
		return nil, &res
	}
	if obj, ok := inst.(map[string]any); ok {
		for _, p := range t.def.Parameters {
			if v, present := args[p.Name]; present && v == nil {
				delete(args, p.Name)
				delete(obj, p.Name)
			}
		}
	}
	if err := t.schema.Validate(inst); err != nil {
		field, reason := invalidValue(err)
		res := Fail(CodeInvalidArguments, "invalid value for %s: %s", field, reason).
			WithDetails(map[string]any{"field": field})
		return nil, &res
	}

	for _, p := range t.def.Parameters {
		if p.Default != nil && !args.Has(p.Name) {
			args[p.Name] = p.Default
		}
	}
	return args, nil
}

var reasonPrinter = message.NewPrinter(language.English)

// invalidValue returns the deepest instance location named by a schema
// validation error, e.g. "channels/0", and the reason reported there.
func invalidValue(err error) (field, reason string) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "arguments", err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field = "arguments"
	if len(ve.InstanceLocation) > 0 {
		field = strings.Join(ve.InstanceLocation, "/")
	}
	return field, ve.ErrorKind.LocalizedString(reasonPrinter)
}
