package main

import (
	"io"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"YAML config file; environment variables take precedence"`

	Run    *RunCmd    `command:"run" description:"Run one execution from JSON input and print the response envelope"`
	Tools  *ToolsCmd  `command:"tools" description:"Print the model-facing schema of the platform tools"`
	Schema *SchemaCmd `command:"schema" description:"Print the JSON schema of structured output"`
	Models *ModelsCmd `command:"models" description:"List known models"`
}

// newOptions instantiates every sub-command so the parser can populate the
// selected one.
func newOptions(stdout, stderr io.Writer) *Options {
	o := &Options{}
	o.Run = &RunCmd{opts: o, out: stdout, errOut: stderr, newModel: newClient}
	o.Tools = &ToolsCmd{out: stdout}
	o.Schema = &SchemaCmd{out: stdout}
	o.Models = &ModelsCmd{out: stdout}
	return o
}

func writeJSON(w io.Writer, data []byte) error {
	_, err := w.Write(append(data, '\n'))
	return err
}
