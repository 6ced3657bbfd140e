// Package entity holds the domain data shared by every other package: the
// read-only Context snapshot a caller passes into one execution, and the
// Operation records an execution hands back for the platform to apply.
//
// The platform speaks camelCase JSON. Translation between that wire shape and
// the internal types happens only in this package (see WireContext and
// DecodeContext); the agent loop never sees the wire structs.
package entity
