package agentloop

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
)

// DefaultLoopWindow is the number of recent tool calls inspected for a
// repeating pattern.
const DefaultLoopWindow = 6

// toolCallSignature identifies a call by name and compacted arguments, so
// whitespace differences do not hide a repeat.
func toolCallSignature(name string, arguments json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, arguments); err != nil {
		buf.Reset()
		buf.Write(arguments)
	}
	h := sha256.Sum256(buf.Bytes())
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentSignatures returns up to count signatures of the latest tool calls,
// oldest first.
func recentSignatures(turns []Turn, count int) []string {
	var sigs []string
	for i := len(turns) - 1; i >= 0 && len(sigs) < count; i-- {
		t := turns[i]
		if t.Kind != TurnAssistant {
			continue
		}
		for j := len(t.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(t.ToolCalls[j].Name, t.ToolCalls[j].Arguments))
		}
	}
	slices.Reverse(sigs)
	return sigs
}

// DetectLoop reports whether the last window tool calls repeat a pattern of
// one, two or three calls.
func DetectLoop(turns []Turn, window int) bool {
	if window < 2 {
		return false
	}
	sigs := recentSignatures(turns, window)
	if len(sigs) < window {
		return false
	}
	for size := 1; size <= 3 && size < window; size++ {
		if window%size != 0 {
			continue
		}
		repeats := true
		for i := size; i < window && repeats; i++ {
			repeats = sigs[i] == sigs[i%size]
		}
		if repeats {
			return true
		}
	}
	return false
}
