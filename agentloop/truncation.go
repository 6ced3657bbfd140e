package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Defaults applied to tool output before it is sent back to the model.
const (
	DefaultToolOutputLimit = 16000 // characters
	DefaultToolLineLimit   = 400
)

// OutputLimits bounds tool output sent to the model. Per-tool entries
// override the defaults; zero disables a bound.
type OutputLimits struct {
	Chars   int
	Lines   int
	Mode    TruncationMode
	PerTool map[string]int
}

// DefaultOutputLimits returns head/tail truncation at DefaultToolOutputLimit
// characters and DefaultToolLineLimit lines.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		Chars: DefaultToolOutputLimit,
		Lines: DefaultToolLineLimit,
		Mode:  TruncateHeadTail,
	}
}

// TruncateOutput shortens output to maxChars runes, leaving a marker that
// says how much was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	runes := []rune(output)
	if maxChars <= 0 || len(runes) <= maxChars {
		return output
	}
	removed := len(runes) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[Tool output truncated: first %d characters removed.]\n", removed) +
			string(runes[len(runes)-maxChars:])
	}
	head := maxChars / 2
	tail := maxChars - head
	return string(runes[:head]) +
		fmt.Sprintf("\n[Tool output truncated: %d characters removed from the middle. Call the tool with narrower arguments to see more.]\n", removed) +
		string(runes[len(runes)-tail:])
}

// TruncateLines keeps the first and last lines of output, maxLines in total.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - maxLines
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// apply truncates output of the named tool: characters first, then lines.
func (l OutputLimits) apply(tool, output string) string {
	chars := l.Chars
	if n, ok := l.PerTool[tool]; ok {
		chars = n
	}
	return TruncateLines(TruncateOutput(output, chars, l.Mode), l.Lines)
}
