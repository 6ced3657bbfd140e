package unifiedllm

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/martinemde/entityagent/unifiedllm"

// LoggingMiddleware logs every model call at debug level and failures at
// warn level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			"provider", req.Provider,
			"model", req.Model,
			"messages", len(req.Messages),
			"tools", len(req.Tools),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.WarnContext(ctx, "model call failed", append(attrs, "error", err, "retryable", IsRetryable(err))...)
			return nil, err
		}
		logger.DebugContext(ctx, "model call",
			append(attrs,
				"finish_reason", resp.FinishReason.Reason,
				"tool_calls", len(resp.ToolCalls()),
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens,
			)...)
		return resp, nil
	}
}

// RetryMiddleware retries retryable failures with policy.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// TracingMiddleware records one span per model call.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(tracerName)
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
			attribute.String("llm.provider", req.Provider),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.tools", len(req.Tools)),
		))
		defer span.End()

		resp, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(
			attribute.String("llm.finish_reason", resp.FinishReason.Reason),
			attribute.Int("llm.usage.input_tokens", resp.Usage.InputTokens),
			attribute.Int("llm.usage.output_tokens", resp.Usage.OutputTokens),
		)
		return resp, nil
	}
}
