package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/martinemde/entityagent/entity"
)

func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, *Registry) {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(
		def("search",
			Parameter{Name: "query", Type: TypeString, Required: true},
			Parameter{Name: "limit", Type: TypeInteger, Default: 5},
			Parameter{Name: "sort", Type: TypeEnum, Enum: []string{"relevance", "recent"}},
		),
	)
	return NewExecutor(reg, opts...), reg
}

func TestExecutor_Success(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), "search", json.RawMessage(`{"query":"launch"}`), CallContext{ToolCallID: "call_1"})

	require.True(t, res.Success)
	require.Nil(t, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, "launch", data["query"])
	assert.Equal(t, 5, data["limit"], "default applied")
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), "nope", nil, CallContext{})

	assert.False(t, res.Success)
	assert.Equal(t, CodeUnknownTool, res.FailureCode())
	assert.Contains(t, res.Error.Message, "nope")
	assert.Equal(t, []string{"search"}, res.Error.Details["available"])
}

func TestExecutor_InvalidArguments(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		field string
	}{
		{"missing required", `{}`, "query"},
		{"null required", `{"query":null}`, "query"},
		{"wrong type", `{"query":"x","limit":"five"}`, "limit"},
		{"not in enum", `{"query":"x","sort":"oldest"}`, "sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := newTestExecutor(t)
			res := exec.Execute(context.Background(), "search", json.RawMessage(tt.args), CallContext{})

			require.False(t, res.Success)
			assert.Equal(t, CodeInvalidArguments, res.FailureCode())
			assert.Equal(t, tt.field, res.Error.Details["field"])
			assert.Contains(t, res.Error.Message, tt.field)
		})
	}
}

func TestExecutor_NullOptionalArguments(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), "search", json.RawMessage(`{"query":"launch","limit":null,"sort":null}`), CallContext{})

	require.True(t, res.Success, "error: %+v", res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, 5, data["limit"], "null falls back to the default")
	assert.NotContains(t, data, "sort")
}

func TestExecutor_InvalidArgumentsReasonMatchesField(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), "search", json.RawMessage(`{"query":"x","limit":"five","sort":"oldest"}`), CallContext{})

	require.False(t, res.Success)
	field := res.Error.Details["field"].(string)
	require.Contains(t, []string{"limit", "sort"}, field)
	if field == "limit" {
		assert.Contains(t, res.Error.Message, "want integer")
		assert.NotContains(t, res.Error.Message, "relevance")
	} else {
		assert.Contains(t, res.Error.Message, "relevance")
		assert.NotContains(t, res.Error.Message, "want integer")
	}
}

func TestExecutor_NonObjectArguments(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), "search", json.RawMessage(`["launch"]`), CallContext{})

	assert.Equal(t, CodeInvalidArguments, res.FailureCode())
}

func TestExecutor_EmptyArgumentsForParameterlessTool(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(def("ping"))
	exec := NewExecutor(reg)

	for _, raw := range []string{"", "null", "{}"} {
		res := exec.Execute(context.Background(), "ping", json.RawMessage(raw), CallContext{})
		assert.True(t, res.Success, "arguments %q", raw)
	}
}

func TestExecutor_HandlerFailures(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		Definition{Name: "fails", Handler: func(context.Context, Args, CallContext) (Result, error) {
			return Result{}, errors.New("brand not found")
		}},
		Definition{Name: "panics", Handler: func(context.Context, Args, CallContext) (Result, error) {
			panic("boom")
		}},
		Definition{Name: "silent", Handler: func(context.Context, Args, CallContext) (Result, error) {
			return Result{}, nil
		}},
	)
	exec := NewExecutor(reg)

	res := exec.Execute(context.Background(), "fails", nil, CallContext{})
	assert.Equal(t, CodeHandlerError, res.FailureCode())
	assert.Equal(t, "brand not found", res.Error.Message)

	res = exec.Execute(context.Background(), "panics", nil, CallContext{})
	assert.Equal(t, CodeHandlerError, res.FailureCode())
	assert.Contains(t, res.Error.Message, "boom")

	res = exec.Execute(context.Background(), "silent", nil, CallContext{})
	assert.Equal(t, CodeHandlerError, res.FailureCode())
}

func TestExecutor_PassesCallContext(t *testing.T) {
	var got CallContext
	reg := NewRegistry()
	reg.MustRegister(Definition{Name: "inspect", Handler: func(_ context.Context, _ Args, call CallContext) (Result, error) {
		got = call
		return OK(nil), nil
	}})
	exec := NewExecutor(reg)

	snapshot := entity.Context{BrandID: "b1", OrganizationID: "org1"}
	exec.Execute(context.Background(), "inspect", nil, CallContext{ExecutionID: "exec_1", ToolCallID: "call_9", Entity: snapshot})

	assert.Equal(t, "exec_1", got.ExecutionID)
	assert.Equal(t, "call_9", got.ToolCallID)
	assert.Equal(t, "b1", got.Entity.BrandID)
	assert.NotNil(t, got.Logger)
}

func TestExecutor_CancelledContext(t *testing.T) {
	exec, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := exec.Execute(ctx, "search", json.RawMessage(`{"query":"x"}`), CallContext{})

	assert.Equal(t, CodeCancelled, res.FailureCode())
}

func TestExecutor_ToolTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(Definition{Name: "slow", Handler: func(ctx context.Context, _ Args, _ CallContext) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}})
	exec := NewExecutor(reg, WithToolTimeout(10*time.Millisecond))

	res := exec.Execute(context.Background(), "slow", nil, CallContext{})

	assert.Equal(t, CodeHandlerError, res.FailureCode())
	assert.Contains(t, res.Error.Message, "deadline exceeded")
}

func TestExecutor_Approval(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	reg.MustRegister(Definition{
		Name:                 "publish",
		RequiresConfirmation: true,
		Handler: func(context.Context, Args, CallContext) (Result, error) {
			calls.Add(1)
			return OK("published"), nil
		},
	})

	deny := NewExecutor(reg, WithApprover(ApproverFunc(func(_ context.Context, req ApprovalRequest) (bool, error) {
		assert.Equal(t, "publish", req.Tool)
		return false, nil
	})))
	res := deny.Execute(context.Background(), "publish", nil, CallContext{})
	assert.Equal(t, CodeConfirmationDenied, res.FailureCode())
	assert.Zero(t, calls.Load())

	broken := NewExecutor(reg, WithApprover(ApproverFunc(func(context.Context, ApprovalRequest) (bool, error) {
		return false, errors.New("approval service down")
	})))
	res = broken.Execute(context.Background(), "publish", nil, CallContext{})
	assert.Equal(t, CodeHandlerError, res.FailureCode())
	assert.Zero(t, calls.Load())

	allow := NewExecutor(reg, WithApprover(ApproverFunc(func(context.Context, ApprovalRequest) (bool, error) {
		return true, nil
	})))
	res = allow.Execute(context.Background(), "publish", nil, CallContext{})
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecutor_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	exec, _ := newTestExecutor(t, WithExecutorTracerProvider(tp))

	exec.Execute(context.Background(), "search", json.RawMessage(`{"query":"x"}`), CallContext{ToolCallID: "call_1", ExecutionID: "exec_1"})
	exec.Execute(context.Background(), "missing", nil, CallContext{ToolCallID: "call_2"})

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tool.execute", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("tool.name", "search"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("agent.execution_id", "exec_1"))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("tool.success", true))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("tool.error_code", string(CodeUnknownTool)))
}

func TestResult_Content(t *testing.T) {
	op := entity.Operation{Type: entity.OpCreateCampaign, BrandID: "b1", Data: map[string]any{"name": "x"}}
	res := OKWithOperation(map[string]any{"queued": true}, op)

	assert.JSONEq(t, `{"success":true,"data":{"queued":true}}`, res.Content())

	failed := Fail(CodeInvalidArguments, "missing required parameter: %s", "name")
	assert.JSONEq(t, `{"success":false,"error":{"code":"INVALID_ARGUMENTS","message":"missing required parameter: name"}}`, failed.Content())
}
