package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/internal/testkit"
	"github.com/martinemde/entityagent/operations"
	"github.com/martinemde/entityagent/tools"
	"github.com/martinemde/entityagent/tools/platform"
	"github.com/martinemde/entityagent/unifiedllm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func input(prompt string) Input {
	return Input{
		ExecutionID:  "exec-1",
		SystemPrompt: "You are a marketing assistant.",
		Payload:      map[string]any{"prompt": prompt},
		Entity: entity.Context{
			UserID:         "u1",
			BrandID:        "b1",
			OrganizationID: "org1",
			Brands:         []entity.Brand{{ID: "b1", Name: "Acme Coffee"}},
		},
		Model: "gpt-4o-mini",
	}
}

func lastMessage(req unifiedllm.Request) unifiedllm.Message {
	return req.Messages[len(req.Messages)-1]
}

func TestExecute_PlainAnswer(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("Hello", testkit.Usage(12, 3)))
	rt := New(model, platform.NewRegistry())

	res := rt.Execute(context.Background(), input("Say hello"))

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, model.Calls())
	assert.Equal(t, operations.OutputText, res.Output.Kind())
	assert.Equal(t, "Hello", res.Output.Text())
	assert.Empty(t, res.Operations)
	assert.NotNil(t, res.Operations)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, "exec-1", res.ExecutionID)
	assert.Equal(t, operations.TokenUsage{Prompt: 12, Completion: 3, Total: 15}, res.TokensUsed)
}

func TestExecute_ToolOperation(t *testing.T) {
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(testkit.Usage(100, 20), testkit.Call{
			ID:   "call_1",
			Name: "create_campaign",
			Args: map[string]any{"name": "Q2 Launch", "channels": []string{"linkedin"}},
		}),
		testkit.Text("Done", testkit.Usage(150, 5)),
	)
	rt := New(model, platform.NewRegistry())

	res := rt.Execute(context.Background(), input("Create a Q2 campaign on LinkedIn"))

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, 2, model.Calls())
	assert.Equal(t, "Done", res.Output.Text())

	require.Len(t, res.Operations, 1)
	op := res.Operations[0]
	assert.Equal(t, entity.OpCreateCampaign, op.Type)
	assert.Equal(t, "b1", op.BrandID)
	assert.Equal(t, "Q2 Launch", op.Data["name"])
	channels, err := json.Marshal(op.Data["channels"])
	require.NoError(t, err)
	assert.JSONEq(t, `["linkedin"]`, string(channels))

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "call_1", res.ToolCalls[0].ID)
	assert.Equal(t, "create_campaign", res.ToolCalls[0].Name)
	assert.True(t, res.ToolCalls[0].Result.Success)
	assert.Equal(t, operations.TokenUsage{Prompt: 250, Completion: 25, Total: 275}, res.TokensUsed)

	// The model sees the tool result on the second call.
	msg := lastMessage(model.LastRequest())
	assert.Equal(t, unifiedllm.RoleTool, msg.Role)
	require.NotNil(t, msg.Content[0].ToolResult)
	assert.Equal(t, "call_1", msg.Content[0].ToolResult.ToolCallID)
	assert.Contains(t, msg.Content[0].ToolResult.Content, `"success":true`)
}

func TestExecute_UnknownToolIsReportedToModel(t *testing.T) {
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(testkit.Usage(10, 2), testkit.Call{ID: "call_1", Name: "nope"}),
		testkit.Text("I could not do that.", testkit.Usage(10, 2)),
	)
	rt := New(model, platform.NewRegistry())

	res := rt.Execute(context.Background(), input("Do the impossible"))

	require.True(t, res.Success)
	assert.Equal(t, 2, model.Calls())
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, tools.CodeUnknownTool, res.ToolCalls[0].Result.FailureCode())

	msg := lastMessage(model.LastRequest())
	require.NotNil(t, msg.Content[0].ToolResult)
	assert.True(t, msg.Content[0].ToolResult.IsError)
	assert.Contains(t, msg.Content[0].ToolResult.Content, "UNKNOWN_TOOL")
}

func TestExecute_UnknownEnabledToolFailsBeforeModel(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("unused", unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry())
	in := input("hi")
	in.EnabledTools = []string{"create_campaign", "nope"}

	res := rt.Execute(context.Background(), in)

	assert.False(t, res.Success)
	assert.Equal(t, 0, model.Calls())
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeValidation, res.Error.Code)
	assert.Equal(t, []string{"nope"}, res.Error.Details["unknown"])

	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "enabledTools", verr.Field)
	var unknown *tools.UnknownToolsError
	assert.ErrorAs(t, res.Err, &unknown)
}

func TestExecute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"missing execution id", func(in *Input) { in.ExecutionID = "" }, "executionId"},
		{"missing system prompt", func(in *Input) { in.SystemPrompt = "" }, "systemPrompt"},
		{"missing prompt", func(in *Input) { in.Payload = map[string]any{"topic": "x"} }, "prompt"},
		{"nil payload", func(in *Input) { in.Payload = nil }, "prompt"},
		{"blank prompt", func(in *Input) { in.Payload = map[string]any{"prompt": "  "} }, "prompt"},
		{"prompt not a string", func(in *Input) { in.Payload = map[string]any{"prompt": 42} }, "prompt"},
		{"temperature out of range", func(in *Input) { v := 2.5; in.Temperature = &v }, "temperature"},
		{"negative iterations", func(in *Input) { in.MaxIterations = -1 }, "maxIterations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testkit.NewScriptedModel()
			rt := New(model, platform.NewRegistry())
			in := input("hi")
			tt.mutate(&in)

			res := rt.Execute(context.Background(), in)

			assert.False(t, res.Success)
			assert.Equal(t, 0, model.Calls())
			assert.Equal(t, CodeValidation, res.Error.Code)
			var verr *ValidationError
			require.ErrorAs(t, res.Err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestExecute_IterationLimit(t *testing.T) {
	search := testkit.Call{ID: "call_1", Name: "search_knowledge_base", Args: map[string]any{"query": "coffee"}}
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(testkit.Usage(10, 1), search),
		testkit.Text("never reached", unifiedllm.Usage{}),
	)
	rt := New(model, platform.NewRegistry())
	in := input("Keep searching")
	in.MaxIterations = 1

	res := rt.Execute(context.Background(), in)

	assert.False(t, res.Success)
	assert.Equal(t, 1, model.Calls())
	assert.Equal(t, CodeIterationLimit, res.Error.Code)
	assert.Equal(t, 1, res.Error.Details["maxIterations"])
	require.Len(t, res.ToolCalls, 1, "calls made before the limit are kept")
	assert.Equal(t, 11, res.TokensUsed.Total)
	assert.Empty(t, res.Operations)

	var limit *IterationLimitError
	require.ErrorAs(t, res.Err, &limit)
	assert.Equal(t, 1, limit.Limit)
}

func TestExecute_SingleIterationAnswer(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("Quick answer", unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry(), WithMaxIterations(1))

	res := rt.Execute(context.Background(), input("hi"))

	assert.True(t, res.Success)
	assert.Equal(t, 1, model.Calls())
}

func TestExecute_RuntimeIterationDefault(t *testing.T) {
	steps := make([]testkit.Step, 0, 3)
	for i := range 3 {
		steps = append(steps, testkit.ToolCalls(unifiedllm.Usage{}, testkit.Call{
			Name: "search_knowledge_base",
			Args: map[string]any{"query": strings.Repeat("q", i+1)},
		}))
	}
	model := testkit.NewScriptedModel(steps...)
	rt := New(model, platform.NewRegistry(), WithMaxIterations(2))

	res := rt.Execute(context.Background(), input("loop"))

	assert.Equal(t, CodeIterationLimit, res.Error.Code)
	assert.Equal(t, 2, model.Calls())
	for _, call := range res.ToolCalls {
		assert.True(t, strings.HasPrefix(call.ID, "call_"), "generated id %q", call.ID)
	}
}

func TestExecute_ModelError(t *testing.T) {
	serverErr := &unifiedllm.ServerError{ProviderError: unifiedllm.ProviderError{
		SDKError:   unifiedllm.SDKError{Message: "upstream exploded"},
		Provider:   "openai",
		StatusCode: 500,
		Retryable:  true,
	}}
	model := testkit.NewScriptedModel(testkit.Fail(serverErr))
	rt := New(model, platform.NewRegistry())

	res := rt.Execute(context.Background(), input("hi"))

	assert.False(t, res.Success)
	assert.Equal(t, CodeModelError, res.Error.Code)
	assert.Contains(t, res.Error.Message, "upstream exploded")

	var merr *ModelError
	require.ErrorAs(t, res.Err, &merr)
	assert.False(t, merr.Timeout)
	var se *unifiedllm.ServerError
	assert.ErrorAs(t, res.Err, &se)
}

func TestExecute_ModelTimeout(t *testing.T) {
	never := make(chan struct{})
	defer close(never)
	model := testkit.NewScriptedModel(testkit.Step{Wait: never})
	rt := New(model, platform.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := rt.Execute(ctx, input("hi"))

	assert.False(t, res.Success)
	assert.Equal(t, CodeModelTimeout, res.Error.Code)
	var merr *ModelError
	require.ErrorAs(t, res.Err, &merr)
	assert.True(t, merr.Timeout)
}

func TestExecute_CancelledBeforeFirstCall(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("unused", unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := rt.Execute(ctx, input("hi"))

	assert.Equal(t, CodeModelTimeout, res.Error.Code)
	assert.Equal(t, 0, model.Calls())
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestExecute_CancelledDuringTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := tools.NewRegistry()
	reg.MustRegister(
		tools.Definition{
			Name: "stop",
			Handler: func(context.Context, tools.Args, tools.CallContext) (tools.Result, error) {
				cancel()
				return tools.OK("stopped"), nil
			},
		},
		tools.Definition{
			Name: "after",
			Handler: func(context.Context, tools.Args, tools.CallContext) (tools.Result, error) {
				t.Error("tool ran after cancellation")
				return tools.OK(nil), nil
			},
		},
	)
	model := testkit.NewScriptedModel(testkit.ToolCalls(unifiedllm.Usage{},
		testkit.Call{ID: "a", Name: "stop"},
		testkit.Call{ID: "b", Name: "after"},
	))
	rt := New(model, reg)

	res := rt.Execute(ctx, input("go"))

	assert.Equal(t, CodeModelTimeout, res.Error.Code)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "a", res.ToolCalls[0].ID)
}

func TestExecute_EnabledToolsFilter(t *testing.T) {
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{}, testkit.Call{
			ID:   "call_1",
			Name: "create_campaign",
			Args: map[string]any{"name": "Hidden", "channels": []string{"email"}},
		}),
		testkit.Text("ok", unifiedllm.Usage{}),
	)
	rt := New(model, platform.NewRegistry())
	in := input("hi")
	in.EnabledTools = []string{"search_knowledge_base"}

	res := rt.Execute(context.Background(), in)

	require.True(t, res.Success)
	first := model.Requests()[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "search_knowledge_base", first.Tools[0].Name)
	require.NotNil(t, first.ToolChoice)
	assert.Equal(t, "auto", first.ToolChoice.Mode)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, tools.CodeUnknownTool, res.ToolCalls[0].Result.FailureCode())
	assert.Contains(t, res.ToolCalls[0].Result.Error.Message, "not enabled")
	assert.Empty(t, res.Operations)
}

func TestExecute_NoToolsEnabled(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("ok", unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry())
	in := input("hi")
	in.EnabledTools = []string{}

	res := rt.Execute(context.Background(), in)

	require.True(t, res.Success)
	req := model.LastRequest()
	assert.Empty(t, req.Tools)
	assert.Nil(t, req.ToolChoice)
}

func TestExecute_BuildsMessages(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("ok", unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry())
	in := input("Plan a launch")
	in.Payload["audience"] = "baristas"
	temp := 0.7
	in.Temperature = &temp

	rt.Execute(context.Background(), in)

	req := model.LastRequest()
	require.Len(t, req.Messages, 2)
	system := req.Messages[0]
	assert.Equal(t, unifiedllm.RoleSystem, system.Role)
	assert.True(t, strings.HasPrefix(system.TextContent(), "You are a marketing assistant."))
	assert.Contains(t, system.TextContent(), "Acme Coffee")

	user := req.Messages[1]
	assert.Equal(t, unifiedllm.RoleUser, user.Role)
	assert.JSONEq(t, `{"prompt":"Plan a launch","audience":"baristas"}`, user.TextContent())

	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.7, *req.Temperature)
	assert.Equal(t, "exec-1", req.Metadata["execution_id"])
	assert.Nil(t, req.ResponseFormat)
}

func TestExecute_StructuredOutput(t *testing.T) {
	answer := `{"summary":"Planned","entityOperations":[` +
		`{"type":"create_content","brandId":"b1","data":{"type":"SOCIAL_POST","channel":"linkedin","title":"Teaser","body":"Soon."}}]}`
	model := testkit.NewScriptedModel(testkit.Text(answer, unifiedllm.Usage{}))
	rt := New(model, platform.NewRegistry())
	in := input("Plan a teaser")
	in.StructuredOutput = true

	res := rt.Execute(context.Background(), in)

	require.True(t, res.Success)
	req := model.LastRequest()
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_schema", req.ResponseFormat.Type)
	assert.NotEmpty(t, req.ResponseFormat.JSONSchema)

	assert.Equal(t, operations.OutputStructured, res.Output.Kind())
	summary, ok := res.Output.Get("summary")
	require.True(t, ok)
	assert.Equal(t, "Planned", summary)
	_, ok = res.Output.Get("entityOperations")
	assert.False(t, ok, "embedded operations are lifted out of the output")
	require.Len(t, res.Operations, 1)
	assert.Equal(t, entity.OpCreateContent, res.Operations[0].Type)
}

func TestExecute_ParallelIndependentTools(t *testing.T) {
	var inflight, peak atomic.Int32
	slow := func(context.Context, tools.Args, tools.CallContext) (tools.Result, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inflight.Add(-1)
		return tools.OK("done"), nil
	}
	reg := tools.NewRegistry()
	reg.MustRegister(
		tools.Definition{Name: "fetch_a", Handler: slow, Independent: true},
		tools.Definition{Name: "fetch_b", Handler: slow, Independent: true},
	)
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{},
			testkit.Call{ID: "a", Name: "fetch_a"},
			testkit.Call{ID: "b", Name: "fetch_b"},
		),
		testkit.Text("ok", unifiedllm.Usage{}),
	)
	rt := New(model, reg, WithParallelIndependentTools(0))

	res := rt.Execute(context.Background(), input("fetch"))

	require.True(t, res.Success)
	assert.Equal(t, int32(2), peak.Load())
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "a", res.ToolCalls[0].ID)
	assert.Equal(t, "b", res.ToolCalls[1].ID)

	var ids []string
	for _, m := range model.LastRequest().Messages {
		if m.Role == unifiedllm.RoleTool {
			ids = append(ids, m.Content[0].ToolResult.ToolCallID)
		}
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestExecute_DependentToolsRunSequentially(t *testing.T) {
	var inflight, peak atomic.Int32
	handler := func(context.Context, tools.Args, tools.CallContext) (tools.Result, error) {
		n := inflight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return tools.OK(nil), nil
	}
	reg := tools.NewRegistry()
	reg.MustRegister(
		tools.Definition{Name: "read", Handler: handler, Independent: true},
		tools.Definition{Name: "write", Handler: handler},
	)
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{},
			testkit.Call{ID: "a", Name: "read"},
			testkit.Call{ID: "b", Name: "write"},
		),
		testkit.Text("ok", unifiedllm.Usage{}),
	)
	rt := New(model, reg, WithParallelIndependentTools(0))

	res := rt.Execute(context.Background(), input("go"))

	require.True(t, res.Success)
	assert.Equal(t, int32(1), peak.Load())
}

func TestExecute_LoopDetectionSteers(t *testing.T) {
	same := testkit.Call{Name: "search_knowledge_base", Args: map[string]any{"query": "coffee"}}
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{}, same),
		testkit.ToolCalls(unifiedllm.Usage{}, same),
		testkit.Text("Giving up", unifiedllm.Usage{}),
	)
	obs := NewChannelObserver(64)
	rt := New(model, platform.NewRegistry(), WithLoopDetection(true, 2), WithObserver(obs))

	res := rt.Execute(context.Background(), input("search"))
	obs.Close()

	require.True(t, res.Success)
	msg := lastMessage(model.LastRequest())
	assert.Equal(t, unifiedllm.RoleUser, msg.Role)
	assert.Contains(t, msg.TextContent(), "repeat the same pattern")

	var detected int
	for e := range obs.Events() {
		if e.Kind == EventLoopDetection {
			detected++
		}
	}
	assert.Equal(t, 1, detected)
}

func TestExecute_LoopDetectionDisabled(t *testing.T) {
	same := testkit.Call{Name: "search_knowledge_base", Args: map[string]any{"query": "coffee"}}
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{}, same),
		testkit.ToolCalls(unifiedllm.Usage{}, same),
		testkit.Text("done", unifiedllm.Usage{}),
	)
	rt := New(model, platform.NewRegistry(), WithLoopDetection(false, 2))

	rt.Execute(context.Background(), input("search"))

	assert.Equal(t, unifiedllm.RoleTool, lastMessage(model.LastRequest()).Role)
}

func TestExecute_TruncatesToolOutputForModel(t *testing.T) {
	long := strings.Repeat("x", 500)
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Definition{
		Name: "dump",
		Handler: func(context.Context, tools.Args, tools.CallContext) (tools.Result, error) {
			return tools.OK(long), nil
		},
	})
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{}, testkit.Call{ID: "c", Name: "dump"}),
		testkit.Text("ok", unifiedllm.Usage{}),
	)
	rt := New(model, reg, WithOutputLimits(OutputLimits{Chars: 100, Mode: TruncateHeadTail}))

	res := rt.Execute(context.Background(), input("dump"))

	require.True(t, res.Success)
	sent := lastMessage(model.LastRequest()).Content[0].ToolResult.Content
	assert.Contains(t, sent, "Tool output truncated")
	assert.Less(t, len(sent), 300)
	assert.Equal(t, long, res.ToolCalls[0].Result.Data, "the record keeps the full result")
}

func TestExecute_ContextWindowWarning(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text("ok", unifiedllm.Usage{}))
	var mu sync.Mutex
	var warnings []Event
	obs := ObserverFunc(func(e Event) {
		if e.Kind == EventWarning {
			mu.Lock()
			warnings = append(warnings, e)
			mu.Unlock()
		}
	})
	huge := func(string, string) int { return 1_000_000 }
	rt := New(model, platform.NewRegistry(), WithObserver(obs), WithTokenCounter(huge))

	rt.Execute(context.Background(), input("hi"))

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Data["message"], "gpt-4o-mini")
}

func TestExecute_EventsAndSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	obs := NewChannelObserver(64)
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(unifiedllm.Usage{}, testkit.Call{ID: "c1", Name: "get_brand_guidelines"}),
		testkit.Text("ok", testkit.Usage(5, 5)),
	)
	rt := New(model, platform.NewRegistry(), WithObserver(obs), WithTracerProvider(tp))

	res := rt.Execute(context.Background(), input("guidelines?"))
	obs.Close()
	require.True(t, res.Success)

	var kinds []EventKind
	for e := range obs.Events() {
		assert.Equal(t, "exec-1", e.ExecutionID)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{
		EventExecutionStart,
		EventModelRequest, EventModelResponse,
		EventToolCallStart, EventToolCallEnd,
		EventModelRequest, EventModelResponse,
		EventExecutionEnd,
	}, kinds)

	var exec sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "agent.execute" {
			exec = s
		}
	}
	require.NotNil(t, exec)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range exec.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "exec-1", attrs["agent.execution_id"].AsString())
	assert.Equal(t, int64(1), attrs["agent.iterations"].AsInt64())
	assert.True(t, attrs["agent.success"].AsBool())
	assert.Equal(t, int64(10), attrs["llm.usage.total_tokens"].AsInt64())
}

func TestExecute_ConcurrentExecutions(t *testing.T) {
	const n = 8
	steps := make([]testkit.Step, n)
	for i := range steps {
		steps[i] = testkit.Text("ok", testkit.Usage(1, 1))
	}
	model := testkit.NewScriptedModel(steps...)
	rt := New(model, platform.NewRegistry())

	var wg sync.WaitGroup
	results := make([]*Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := input("hi")
			in.ExecutionID = "exec-" + string(rune('a'+i))
			results[i] = rt.Execute(context.Background(), in)
		}()
	}
	wg.Wait()

	for i, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, "exec-"+string(rune('a'+i)), res.ExecutionID)
		assert.Equal(t, 2, res.TokensUsed.Total, "usage is per execution")
	}
	assert.Equal(t, n, model.Calls())
}

func TestExecute_ScriptExhaustedIsModelError(t *testing.T) {
	model := testkit.NewScriptedModel()
	rt := New(model, platform.NewRegistry())

	res := rt.Execute(context.Background(), input("hi"))

	assert.Equal(t, CodeModelError, res.Error.Code)
	assert.False(t, errors.Is(res.Err, context.Canceled))
}
