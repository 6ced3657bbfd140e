// Package agentloop runs one agent execution: it injects the caller's entity
// context into the system prompt, alternates model calls with tool
// execution until the model answers without requesting tools, and turns the
// answer into the platform response envelope with its entity operations.
//
// Each execution is bounded by an iteration budget. Tool failures are fed
// back to the model rather than aborting the run; only invalid input, model
// failures and an exhausted budget end an execution early, and each of
// those is reported in the Result with a stable error code.
//
//	rt := agentloop.New(client, platform.NewRegistry(),
//		agentloop.WithLogger(logger),
//		agentloop.WithMaxIterations(10),
//	)
//	res := rt.Execute(ctx, in)
//	if !res.Success {
//		log.Printf("%s: %s", res.Error.Code, res.Error.Message)
//	}
//
// A Runtime holds configuration only and may serve concurrent executions.
package agentloop
