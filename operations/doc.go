// Package operations turns a finished execution into the platform envelope.
//
// The model's final text is classified as an Output (free text or an ordered
// JSON object). An Extractor gathers entity operations from tool results and
// from the reserved "entityOperations" field of structured output, applying
// brand and organization backfill from the execution Scope. A Formatter then
// assembles the Response that is serialized back to the platform:
//
//	{"success": true, "output": ..., "entityOperations": [...],
//	 "executionId": "...", "toolCalls": [...],
//	 "tokensUsed": {"prompt": 0, "completion": 0, "total": 0},
//	 "durationMs": 0}
package operations
