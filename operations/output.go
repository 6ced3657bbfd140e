package operations

import (
	"encoding/json"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OutputKind tags the variant held by an Output.
type OutputKind uint8

const (
	// OutputNone is the zero Output, rendered as JSON null.
	OutputNone OutputKind = iota
	OutputText
	OutputStructured
)

func (k OutputKind) String() string {
	switch k {
	case OutputText:
		return "text"
	case OutputStructured:
		return "structured"
	default:
		return "none"
	}
}

// Fields is an insertion-ordered JSON object.
type Fields = orderedmap.OrderedMap[string, any]

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return orderedmap.New[string, any]()
}

// Output is the final answer of an execution: either free text or a
// structured object whose key order is preserved.
type Output struct {
	kind   OutputKind
	text   string
	fields *Fields
}

// TextOutput wraps free text.
func TextOutput(s string) Output {
	return Output{kind: OutputText, text: s}
}

// StructuredOutput wraps an ordered object. A nil map is treated as empty.
func StructuredOutput(fields *Fields) Output {
	if fields == nil {
		fields = NewFields()
	}
	return Output{kind: OutputStructured, fields: fields}
}

// ParseOutput classifies the model's final text. A JSON object, optionally
// wrapped in a markdown code fence, becomes Structured; anything else stays
// Text verbatim.
func ParseOutput(text string) Output {
	body := strings.TrimSpace(stripFence(strings.TrimSpace(text)))
	if strings.HasPrefix(body, "{") {
		fields := NewFields()
		if err := json.Unmarshal([]byte(body), fields); err == nil {
			return StructuredOutput(fields)
		}
	}
	return TextOutput(text)
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. ```json.
		inner = inner[nl+1:]
	}
	return inner
}

// Kind reports which variant o holds.
func (o Output) Kind() OutputKind { return o.kind }

// Text returns the text variant, or the JSON rendering of a structured one.
func (o Output) Text() string {
	switch o.kind {
	case OutputText:
		return o.text
	case OutputStructured:
		b, err := o.fields.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

// Fields returns the structured variant's object, or nil for text.
func (o Output) Fields() *Fields {
	if o.kind != OutputStructured {
		return nil
	}
	return o.fields
}

// Get looks up a top-level key of a structured output.
func (o Output) Get(key string) (any, bool) {
	if o.kind != OutputStructured {
		return nil, false
	}
	return o.fields.Get(key)
}

// Without returns a copy of a structured output minus key, keeping the
// order of the remaining keys. Text outputs are returned unchanged.
func (o Output) Without(key string) Output {
	if o.kind != OutputStructured {
		return o
	}
	out := NewFields()
	for pair := o.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != key {
			out.Set(pair.Key, pair.Value)
		}
	}
	return StructuredOutput(out)
}

// MarshalJSON renders text as a JSON string and structured output as an
// object in its original key order.
func (o Output) MarshalJSON() ([]byte, error) {
	switch o.kind {
	case OutputText:
		return json.Marshal(o.text)
	case OutputStructured:
		return o.fields.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string, an object or null.
func (o *Output) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*o = Output{}
	case strings.HasPrefix(trimmed, "{"):
		fields := NewFields()
		if err := json.Unmarshal(data, fields); err != nil {
			return err
		}
		*o = StructuredOutput(fields)
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = TextOutput(s)
	}
	return nil
}
