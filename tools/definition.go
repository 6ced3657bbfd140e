package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/martinemde/entityagent/entity"
)

// Category groups tools for filtered listing.
type Category string

const (
	CategoryEntity    Category = "entity"
	CategoryKnowledge Category = "knowledge"
	CategoryUtility   Category = "utility"
	CategoryCustom    Category = "custom"
)

// ParamType is the declared type tag of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeEnum    ParamType = "enum"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject, TypeEnum:
		return true
	}
	return false
}

// Parameter declares one named argument of a tool.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Enum        []string
	// Items is the JSON schema of array elements. Ignored for other types.
	Items map[string]any
}

// Handler runs a tool. args have already been validated against the
// declared parameters and have defaults applied.
type Handler func(ctx context.Context, args Args, call CallContext) (Result, error)

// CallContext carries per-call information into a handler.
type CallContext struct {
	ExecutionID string
	ToolCallID  string
	// Entity is the caller's snapshot for this execution. Handlers must not
	// modify it.
	Entity entity.Context
	Logger *slog.Logger
}

// Definition describes a callable tool. It is copied on registration and
// never modified afterwards.
type Definition struct {
	Name                 string
	Description          string
	Parameters           []Parameter
	Handler              Handler
	Category             Category
	RequiresConfirmation bool
	// Independent marks tools without side effects on other calls in the
	// same step. Only independent calls may be run concurrently.
	Independent bool
}

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,63}$`)

// ValidName reports whether name is an acceptable tool identifier.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Validate checks the definition's own invariants.
func (d Definition) Validate() error {
	if !ValidName(d.Name) {
		return &InvalidToolError{Name: d.Name, Reason: "name must match " + namePattern.String()}
	}
	if d.Handler == nil {
		return &InvalidToolError{Name: d.Name, Reason: "handler is nil"}
	}
	switch d.Category {
	case "", CategoryEntity, CategoryKnowledge, CategoryUtility, CategoryCustom:
	default:
		return &InvalidToolError{Name: d.Name, Reason: fmt.Sprintf("unknown category %q", d.Category)}
	}
	seen := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if p.Name == "" {
			return &InvalidToolError{Name: d.Name, Reason: "parameter with empty name"}
		}
		if seen[p.Name] {
			return &InvalidToolError{Name: d.Name, Reason: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return &InvalidToolError{Name: d.Name, Reason: fmt.Sprintf("parameter %q has unknown type %q", p.Name, p.Type)}
		}
		if p.Type == TypeEnum && len(p.Enum) == 0 {
			return &InvalidToolError{Name: d.Name, Reason: fmt.Sprintf("parameter %q is an enum without values", p.Name)}
		}
		if len(p.Enum) > 0 && p.Default != nil {
			if s, ok := p.Default.(string); !ok || !slices.Contains(p.Enum, s) {
				return &InvalidToolError{Name: d.Name, Reason: fmt.Sprintf("parameter %q default %#v is not an allowed value", p.Name, p.Default)}
			}
		}
	}
	return nil
}

// JSONSchema renders the parameters as a JSON schema object. A fresh map is
// built on every call.
func (d Definition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		properties[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func (p Parameter) schema() map[string]any {
	typ := string(p.Type)
	if p.Type == TypeEnum {
		typ = string(TypeString)
	}
	prop := map[string]any{"type": typ}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		prop["enum"] = slices.Clone(p.Enum)
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	if p.Type == TypeArray {
		items := map[string]any{}
		for k, v := range p.Items {
			items[k] = v
		}
		prop["items"] = items
	}
	return prop
}

func (d Definition) clone() Definition {
	c := d
	if c.Category == "" {
		c.Category = CategoryCustom
	}
	c.Parameters = make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Enum = slices.Clone(p.Enum)
		c.Parameters[i] = p
	}
	return c
}
