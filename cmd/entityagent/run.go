package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/martinemde/entityagent/agentloop"
	"github.com/martinemde/entityagent/config"
	"github.com/martinemde/entityagent/operations"
	"github.com/martinemde/entityagent/tools"
	"github.com/martinemde/entityagent/tools/platform"
	"github.com/martinemde/entityagent/unifiedllm"
)

// modelFactory builds the model client for a run. The closer releases it.
type modelFactory func(cfg *config.Config, logger *slog.Logger, tp trace.TracerProvider) (agentloop.ModelClient, io.Closer, error)

// RunCmd executes one execution from a JSON payload.
type RunCmd struct {
	InputFile  string        `short:"i" long:"input" description:"JSON file with the execution input (stdin if empty)"`
	Model      string        `short:"m" long:"model" description:"model to use when the input names none"`
	Timeout    time.Duration `long:"timeout" description:"execution timeout; overrides AGENT_EXECUTION_TIMEOUT"`
	Structured bool          `long:"structured" description:"ask the model for structured JSON output"`
	Compact    bool          `long:"compact" description:"print the envelope on one line"`

	opts     *Options
	out      io.Writer
	errOut   io.Writer
	newModel modelFactory
}

// Execute implements flags.Commander.
func (r *RunCmd) Execute(_ []string) error {
	cfg, err := config.Load(r.opts.Config)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(r.errOut)

	in, err := r.readInput()
	if err != nil {
		return err
	}
	if in.ExecutionID == "" {
		in.ExecutionID = uuid.NewString()
	}
	if in.Model == "" {
		in.Model = r.Model
	}
	if in.Model == "" {
		in.Model = cfg.Model
	}
	in.StructuredOutput = in.StructuredOutput || r.Structured

	var tp trace.TracerProvider = otel.GetTracerProvider()
	if cfg.TraceSpans {
		sdk := newTracerProvider(logger)
		defer sdk.Shutdown(context.Background())
		tp = sdk
	}

	model, closer, err := r.newModel(cfg, logger, tp)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := []agentloop.Option{
		agentloop.WithLogger(logger),
		agentloop.WithTracerProvider(tp),
		agentloop.WithExtractor(operations.NewExtractor(
			operations.WithInference(cfg.InferOperations),
			operations.WithExtractorLogger(logger),
		)),
		agentloop.WithMaxIterations(cfg.MaxIterations),
		agentloop.WithMaxTokens(cfg.MaxTokens),
		agentloop.WithLoopDetection(cfg.LoopDetection, 0),
		agentloop.WithTokenCounter(unifiedllm.CountTokens),
		agentloop.WithExecutorOptions(tools.WithToolTimeout(cfg.ToolTimeout)),
	}
	if cfg.ParallelTools {
		opts = append(opts, agentloop.WithParallelIndependentTools(0))
	}
	rt := agentloop.New(model, platform.NewRegistry(), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	timeout := cfg.ExecutionTimeout
	if r.Timeout > 0 {
		timeout = r.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := rt.Execute(ctx, in)

	var data []byte
	if r.Compact {
		data, err = json.Marshal(res)
	} else {
		data, err = json.MarshalIndent(res, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := writeJSON(r.out, data); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("execution %s failed: %s", in.ExecutionID, res.Error.Code)
	}
	return nil
}

func (r *RunCmd) readInput() (agentloop.Input, error) {
	var reader io.Reader = os.Stdin
	if r.InputFile != "" {
		f, err := os.Open(r.InputFile)
		if err != nil {
			return agentloop.Input{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		reader = f
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return agentloop.Input{}, fmt.Errorf("read input: %w", err)
	}
	return agentloop.DecodeInput(data)
}

// newClient builds the production client: one gollm adapter per configured
// provider behind tracing, retry and logging middleware.
func newClient(cfg *config.Config, logger *slog.Logger, tp trace.TracerProvider) (agentloop.ModelClient, io.Closer, error) {
	client, err := unifiedllm.NewClientFromConfig(
		cfg.Providers(unifiedllm.CountTokens),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(
			unifiedllm.TracingMiddleware(tp),
			unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
			unifiedllm.LoggingMiddleware(logger),
		),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}
