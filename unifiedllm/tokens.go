package unifiedllm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the number of tokens text occupies for model.
type TokenCounter func(model, text string) int

// ApproxTokens estimates one token per four characters.
func ApproxTokens(_ string, text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

const fallbackEncoding = "cl100k_base"

var encoders sync.Map // encoding name -> *tiktoken.Tiktoken, nil when unavailable

// CountTokens counts tokens with the model's BPE encoding. Models outside the
// catalog use cl100k_base. When no encoding can be loaded (tiktoken fetches
// ranks on first use) it falls back to ApproxTokens.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := encoderFor(model)
	if enc == nil {
		return ApproxTokens(model, text)
	}
	return len(enc.Encode(text, nil, nil))
}

func encoderFor(model string) *tiktoken.Tiktoken {
	name := fallbackEncoding
	if info := GetModelInfo(model); info != nil && info.TokenEncoding != "" {
		name = info.TokenEncoding
	}
	if v, ok := encoders.Load(name); ok {
		enc, _ := v.(*tiktoken.Tiktoken)
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		enc = nil
	}
	v, _ := encoders.LoadOrStore(name, enc)
	enc, _ = v.(*tiktoken.Tiktoken)
	return enc
}

// MessageTokens estimates the tokens of a conversation with counter.
func MessageTokens(counter TokenCounter, model string, messages []Message) int {
	total := 0
	for _, m := range messages {
		for _, part := range m.Content {
			switch part.Kind {
			case ContentText:
				total += counter(model, part.Text)
			case ContentToolCall:
				total += counter(model, part.ToolCall.Name) + counter(model, string(part.ToolCall.Arguments))
			case ContentToolResult:
				total += counter(model, part.ToolResult.Content)
			}
		}
	}
	return total
}
