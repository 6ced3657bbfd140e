package tools

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// ParametersFor derives parameter declarations from the exported fields of
// struct T. Field names come from json tags; descriptions, enums and defaults
// come from jsonschema tags. Fields without omitempty are required.
//
//	type searchArgs struct {
//	    Query string `json:"query" jsonschema_description:"What to look for"`
//	    Limit int    `json:"limit,omitempty" jsonschema:"default=5"`
//	}
//	params := tools.ParametersFor[searchArgs]()
func ParametersFor[T any]() []Parameter {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	var zero T
	s := r.Reflect(&zero)
	if s == nil || s.Properties == nil {
		return nil
	}

	var params []Parameter
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		p := Parameter{
			Name:        pair.Key,
			Type:        ParamType(prop.Type),
			Description: prop.Description,
			Required:    slices.Contains(s.Required, pair.Key),
			Default:     prop.Default,
		}
		if p.Type == "" {
			p.Type = TypeObject
		}
		for _, v := range prop.Enum {
			p.Enum = append(p.Enum, fmt.Sprint(v))
		}
		if p.Type == TypeArray && prop.Items != nil {
			p.Items = schemaMap(prop.Items)
		}
		params = append(params, p)
	}
	return params
}

func schemaMap(s *jsonschema.Schema) map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
