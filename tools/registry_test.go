package tools

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoHandler(_ context.Context, args Args, _ CallContext) (Result, error) {
	return OK(map[string]any(args)), nil
}

func def(name string, params ...Parameter) Definition {
	return Definition{
		Name:        name,
		Description: "test tool " + name,
		Parameters:  params,
		Handler:     echoHandler,
	}
}

func TestRegistry_RegisterKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(def("zeta"), def("alpha"), def("mid"))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, reg.Names())
	assert.Equal(t, 3, reg.Len())

	got, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, CategoryCustom, got.Category)
}

func TestRegistry_DuplicateLeavesRegistryUnchanged(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(def("search", Parameter{Name: "query", Type: TypeString, Required: true}))

	err := reg.Register(def("search"))
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "search", dup.Name)

	got, _ := reg.Get("search")
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, "query", got.Parameters[0].Name)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"bad name", def("1bad")},
		{"empty name", def("")},
		{"nil handler", Definition{Name: "nohandler"}},
		{"unknown type", def("t", Parameter{Name: "x", Type: "date"})},
		{"duplicate param", def("t", Parameter{Name: "x", Type: TypeString}, Parameter{Name: "x", Type: TypeString})},
		{"enum without values", def("t", Parameter{Name: "x", Type: TypeEnum})},
		{"default outside enum", def("t", Parameter{Name: "x", Type: TypeEnum, Enum: []string{"a"}, Default: "b"})},
		{"non-string enum default", def("t", Parameter{Name: "x", Type: TypeEnum, Enum: []string{"1"}, Default: 1})},
		{"unknown category", Definition{Name: "t", Handler: echoHandler, Category: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(tt.def)
			var invalid *InvalidToolError
			require.ErrorAs(t, err, &invalid)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistry_RegisterCopiesDefinition(t *testing.T) {
	d := def("pick", Parameter{Name: "choice", Type: TypeEnum, Enum: []string{"a", "b"}})
	reg := NewRegistry()
	reg.MustRegister(d)

	d.Parameters[0].Enum[0] = "mutated"
	d.Parameters[0].Name = "renamed"

	got, _ := reg.Get("pick")
	assert.Equal(t, "choice", got.Parameters[0].Name)
	assert.Equal(t, []string{"a", "b"}, got.Parameters[0].Enum)
}

func TestRegistry_ListByCategory(t *testing.T) {
	reg := NewRegistry()
	a := def("a")
	a.Category = CategoryEntity
	b := def("b")
	b.Category = CategoryKnowledge
	c := def("c")
	c.Category = CategoryEntity
	reg.MustRegister(a, b, c)

	var names []string
	for d := range reg.List(CategoryEntity) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)

	// The sequence can be ranged again.
	var again []string
	for d := range reg.List(CategoryEntity) {
		again = append(again, d.Name)
	}
	assert.Equal(t, names, again)

	var all []string
	for d := range reg.List("") {
		all = append(all, d.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, all)
}

func TestRegistry_ModelSchema(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		def("create_campaign",
			Parameter{Name: "name", Type: TypeString, Description: "Campaign name", Required: true},
			Parameter{Name: "channels", Type: TypeArray, Items: map[string]any{"type": "string"}},
			Parameter{Name: "status", Type: TypeEnum, Enum: []string{"DRAFT", "ACTIVE"}, Default: "DRAFT"},
		),
		def("search_knowledge_base", Parameter{Name: "query", Type: TypeString, Required: true}),
	)

	defs, err := reg.ModelSchema(nil)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "create_campaign", defs[0].Name)
	assert.Equal(t, "test tool create_campaign", defs[0].Description)

	params := defs[0].Parameters
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"name"}, params["required"])
	props := params["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "Campaign name"}, props["name"])
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{"type": "string"}}, props["channels"])
	assert.Equal(t, map[string]any{"type": "string", "enum": []string{"DRAFT", "ACTIVE"}, "default": "DRAFT"}, props["status"])

	again, err := reg.ModelSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, defs, again)
}

func TestRegistry_ModelSchemaAllowList(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(def("a"), def("b"), def("c"))

	defs, err := reg.ModelSchema([]string{"c", "a"})
	require.NoError(t, err)
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)

	defs, err = reg.ModelSchema([]string{})
	require.NoError(t, err)
	assert.Empty(t, defs)

	_, err = reg.ModelSchema([]string{"a", "missing"})
	var unknown *UnknownToolsError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"missing"}, unknown.Names)
}

func TestParametersFor(t *testing.T) {
	type searchArgs struct {
		Query    string   `json:"query" jsonschema_description:"What to look for"`
		Limit    int      `json:"limit,omitempty" jsonschema:"default=5"`
		Sort     string   `json:"sort,omitempty" jsonschema:"enum=relevance,enum=recent"`
		Channels []string `json:"channels,omitempty"`
	}

	params := ParametersFor[searchArgs]()
	require.Len(t, params, 4)

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"query", "limit", "sort", "channels"}, names)

	assert.Equal(t, TypeString, params[0].Type)
	assert.True(t, params[0].Required)
	assert.Equal(t, "What to look for", params[0].Description)

	assert.Equal(t, TypeInteger, params[1].Type)
	assert.False(t, params[1].Required)
	assert.NotNil(t, params[1].Default)

	assert.Equal(t, []string{"relevance", "recent"}, params[2].Enum)

	assert.Equal(t, TypeArray, params[3].Type)
	assert.Equal(t, "string", params[3].Items["type"])

	reg := NewRegistry()
	require.NoError(t, reg.Register(Definition{Name: "search", Parameters: params, Handler: echoHandler}))
	assert.True(t, slices.Contains(reg.Names(), "search"))
}
