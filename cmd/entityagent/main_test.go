package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/martinemde/entityagent/agentloop"
	"github.com/martinemde/entityagent/config"
	"github.com/martinemde/entityagent/internal/testkit"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func execute(t *testing.T, model agentloop.ModelClient, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeEnv(t, nil, model, args...)
	return out, err
}

// executeEnv runs the CLI with environ set over the test defaults and
// returns stdout and stderr.
func executeEnv(t *testing.T, environ map[string]string, model agentloop.ModelClient, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOG_LEVEL", "error")
	for k, v := range environ {
		t.Setenv(k, v)
	}

	var out, errOut bytes.Buffer
	opts := newOptions(&out, &errOut)
	opts.Run.newModel = func(_ *config.Config, _ *slog.Logger, tp trace.TracerProvider) (agentloop.ModelClient, io.Closer, error) {
		if tp == nil {
			return nil, nil, errors.New("no tracer provider")
		}
		return model, nopCloser{}, nil
	}
	_, err := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash).ParseArgs(args)
	return out.String(), errOut.String(), err
}

func inputFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_PrintsEnvelope(t *testing.T) {
	model := testkit.NewScriptedModel(
		testkit.ToolCalls(testkit.Usage(10, 5), testkit.Call{
			ID:   "call_1",
			Name: "create_campaign",
			Args: map[string]any{"name": "Q2 Launch", "channels": []string{"linkedin"}},
		}),
		testkit.Text("Done", testkit.Usage(10, 5)),
	)
	path := inputFile(t, `{
		"systemPrompt": "You plan campaigns.",
		"input": {"prompt": "Create a Q2 campaign"},
		"context": {"userId": "u1", "brandId": "b1"}
	}`)

	out, err := execute(t, model, "run", "-i", path)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "Done", env["output"])
	assert.NotEmpty(t, env["executionId"], "a missing id is generated")
	ops := env["entityOperations"].([]any)
	require.Len(t, ops, 1)
	assert.Equal(t, "create_campaign", ops[0].(map[string]any)["type"])
	assert.Equal(t, float64(30), env["tokensUsed"].(map[string]any)["total"])

	assert.Equal(t, "gpt-4o-mini", model.LastRequest().Model, "configured model fills the gap")
}

func TestRun_ModelFlagAndStructured(t *testing.T) {
	model := testkit.NewScriptedModel(testkit.Text(`{"summary":"ok"}`, testkit.Usage(1, 1)))
	path := inputFile(t, `{"executionId":"e1","systemPrompt":"s","input":"hi"}`)

	out, err := execute(t, model, "run", "-i", path, "-m", "gpt-4o", "--structured", "--compact")
	require.NoError(t, err)

	req := model.LastRequest()
	assert.Equal(t, "gpt-4o", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_schema", req.ResponseFormat.Type)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("\n")), "compact output is one line")
}

func TestRun_FailureStillPrintsEnvelope(t *testing.T) {
	model := testkit.NewScriptedModel()
	path := inputFile(t, `{"executionId":"e1","systemPrompt":"s","input":"hi","enabledTools":["nope"]}`)

	out, err := execute(t, model, "run", "-i", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, out, `"code": "VALIDATION_ERROR"`)
	assert.Equal(t, 0, model.Calls())
}

func TestRun_InferOperations(t *testing.T) {
	reply := `{"summary":"Plan","campaigns":[{"name":"Spring","channels":["linkedin"],"create":true}]}`
	path := inputFile(t, `{"executionId":"e1","systemPrompt":"s","input":"plan spring","context":{"brandId":"b1"}}`)

	out, err := execute(t, testkit.NewScriptedModel(testkit.Text(reply, testkit.Usage(1, 1))), "run", "-i", path, "--structured")
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Empty(t, env["entityOperations"], "inference is off by default")

	out, _, err = executeEnv(t, map[string]string{"AGENT_INFER_OPERATIONS": "true"},
		testkit.NewScriptedModel(testkit.Text(reply, testkit.Usage(1, 1))), "run", "-i", path, "--structured")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	ops := env["entityOperations"].([]any)
	require.Len(t, ops, 1)
	assert.Equal(t, "create_campaign", ops[0].(map[string]any)["type"])
}

func TestRun_TraceSpans(t *testing.T) {
	path := inputFile(t, `{"executionId":"e1","systemPrompt":"s","input":"hi"}`)

	_, stderr, err := executeEnv(t, map[string]string{"AGENT_TRACE_SPANS": "true", "LOG_LEVEL": "debug"},
		testkit.NewScriptedModel(testkit.Text("hello", testkit.Usage(1, 1))), "run", "-i", path)
	require.NoError(t, err)

	assert.Contains(t, stderr, "span agent.execute")
	assert.Contains(t, stderr, "agent.execution_id=e1")
}

func TestRun_BadInput(t *testing.T) {
	_, err := execute(t, testkit.NewScriptedModel(), "run", "-i", inputFile(t, "{"))
	assert.ErrorContains(t, err, "decode execution input")

	_, err = execute(t, testkit.NewScriptedModel(), "run", "-i", "/does/not/exist.json")
	assert.ErrorContains(t, err, "open input")
}

func TestTools(t *testing.T) {
	out, err := execute(t, nil, "tools", "-e", "create_campaign", "-e", "search_knowledge_base")
	require.NoError(t, err)

	var defs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 2)
	assert.Equal(t, "create_campaign", defs[0]["name"])
	assert.Equal(t, "search_knowledge_base", defs[1]["name"])

	_, err = execute(t, nil, "tools", "-e", "nope")
	assert.ErrorContains(t, err, "nope")
}

func TestSchema(t *testing.T) {
	out, err := execute(t, nil, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, schema, "properties")
}

func TestModels(t *testing.T) {
	out, err := execute(t, nil, "models", "-p", "anthropic")
	require.NoError(t, err)

	assert.Contains(t, out, "claude-sonnet-4-5")
	assert.NotContains(t, out, "gpt-4o-mini")
}

func TestHelp(t *testing.T) {
	err := run([]string{"--help"}, io.Discard, io.Discard)

	var ferr *flags.Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, flags.ErrHelp, ferr.Type)
}
