package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/martinemde/entityagent/operations"
	"github.com/martinemde/entityagent/tools/platform"
	"github.com/martinemde/entityagent/unifiedllm"
)

// ToolsCmd prints the function-calling schema of the platform tools.
type ToolsCmd struct {
	Enabled []string `short:"e" long:"enabled" description:"only include these tools (repeatable)"`

	out io.Writer
}

// Execute implements flags.Commander.
func (c *ToolsCmd) Execute(_ []string) error {
	schema, err := platform.NewRegistry().ModelSchema(c.Enabled)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tool schema: %w", err)
	}
	return writeJSON(c.out, data)
}

// SchemaCmd prints the structured-output JSON schema.
type SchemaCmd struct {
	out io.Writer
}

// Execute implements flags.Commander.
func (c *SchemaCmd) Execute(_ []string) error {
	data, err := operations.OutputSchemaJSON()
	if err != nil {
		return fmt.Errorf("output schema: %w", err)
	}
	return writeJSON(c.out, data)
}

// ModelsCmd lists the model catalog.
type ModelsCmd struct {
	Provider string `short:"p" long:"provider" description:"only list models of this provider"`

	out io.Writer
}

// Execute implements flags.Commander.
func (c *ModelsCmd) Execute(_ []string) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tCONTEXT\tTOOLS\tALIASES")
	for _, m := range unifiedllm.ListModels(c.Provider) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%v\n", m.ID, m.Provider, m.ContextWindow, m.SupportsTools, m.Aliases)
	}
	return w.Flush()
}
