// Package unifiedllm is the model client boundary: a provider-agnostic
// Request/Response model, a Client that routes requests to registered
// ProviderAdapters through middleware, and a GollmAdapter backed by
// github.com/teilomillet/gollm.
//
// # Client
//
//	adapter, _ := unifiedllm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", adapter),
//	    unifiedllm.WithMiddleware(
//	        unifiedllm.LoggingMiddleware(logger),
//	        unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
//	    ),
//	)
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "gpt-4o-mini",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// The provider is taken from the request, then from the model catalog, then
// from the client default.
//
// # Errors
//
// Provider failures are typed (RateLimitError, ServerError, ...). IsRetryable
// drives RetryMiddleware; IsTimeout separates timeouts and cancellation from
// other failures.
//
// # Usage
//
// gollm does not report token usage, so GollmAdapter estimates it with
// CountTokens (tiktoken BPE encodings) and marks the Usage as Estimated.
package unifiedllm
