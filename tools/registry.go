package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/martinemde/entityagent/unifiedllm"
)

// registeredTool pairs a definition with its compiled parameter schema.
type registeredTool struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry maps tool names to definitions. Writes happen at startup; after
// that it is read concurrently by every execution.
type Registry struct {
	tools map[string]*registeredTool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool. It fails with *DuplicateToolError when the name is
// taken and with *InvalidToolError when the definition is malformed; the
// registry is left unchanged in both cases.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def = def.clone()
	schema, err := compileSchema(def)
	if err != nil {
		return &InvalidToolError{Name: def.Name, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	r.tools[def.Name] = &registeredTool{def: def, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister registers every definition and panics on the first error.
// Intended for package-level tool sets wired at startup.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	t, ok := r.lookup(name)
	if !ok {
		return Definition{}, false
	}
	return t.def, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List yields definitions in registration order, filtered by category when
// category is non-empty. Each range over the sequence starts afresh.
func (r *Registry) List(category Category) iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for _, name := range r.Names() {
			t, ok := r.lookup(name)
			if !ok {
				continue
			}
			if category != "" && t.def.Category != category {
				continue
			}
			if !yield(t.def) {
				return
			}
		}
	}
}

// CheckEnabled verifies that every allow-listed name is registered.
func (r *Registry) CheckEnabled(enabled []string) error {
	var unknown []string
	for _, name := range enabled {
		if !r.Has(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return &UnknownToolsError{Names: unknown}
	}
	return nil
}

// ModelSchema renders the function-calling definitions sent to the model.
// A nil allow-list includes every tool; otherwise only listed names are
// included, still in registration order. Unknown allow-list names are an
// error rather than silently dropped.
func (r *Registry) ModelSchema(enabled []string) ([]unifiedllm.ToolDefinition, error) {
	if err := r.CheckEnabled(enabled); err != nil {
		return nil, err
	}
	var allowed map[string]bool
	if enabled != nil {
		allowed = make(map[string]bool, len(enabled))
		for _, name := range enabled {
			allowed[name] = true
		}
	}

	defs := make([]unifiedllm.ToolDefinition, 0, r.Len())
	for def := range r.List("") {
		if allowed != nil && !allowed[def.Name] {
			continue
		}
		defs = append(defs, unifiedllm.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.JSONSchema(),
		})
	}
	return defs, nil
}

func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// compileSchema compiles the parameter schema so arguments can be validated
// without re-parsing it on every call.
func compileSchema(def Definition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse parameter schema: %w", err)
	}
	url := "mem://tools/" + def.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add parameter schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return schema, nil
}
