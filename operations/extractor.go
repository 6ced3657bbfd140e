package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/buger/jsonparser"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

// ReservedField is the structured-output key that carries embedded
// operations. It is removed from the cleaned output.
const ReservedField = "entityOperations"

// Warning codes recorded in Diagnostics.
const (
	WarnMissingBrand        = "MISSING_BRAND"
	WarnMissingOrganization = "MISSING_ORGANIZATION"
	WarnMalformedOperation  = "MALFORMED_OPERATION"
	WarnInferenceSkipped    = "INFERENCE_SKIPPED"
)

// Scope supplies the identifiers used to backfill operations.
type Scope struct {
	BrandID        string
	OrganizationID string
	ExecutionID    string
}

// Warning is a non-fatal extraction problem.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Source  string `json:"source"`
	Index   int    `json:"index"`
}

// Diagnostics summarizes what extraction skipped.
type Diagnostics struct {
	Malformed int       `json:"malformed"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Empty reports whether nothing was skipped.
func (d Diagnostics) Empty() bool {
	return d.Malformed == 0 && len(d.Warnings) == 0
}

// Extraction is the result of Extract.
type Extraction struct {
	Output      Output
	Operations  []entity.Operation
	Diagnostics Diagnostics
}

// Operation sources, used in warnings.
const (
	sourceToolResult = "tool_result"
	sourceEmbedded   = "embedded"
	sourceInferred   = "inferred"
)

// Extractor collects entity operations from tool results and structured
// output. It holds only configuration and is safe for concurrent use.
type Extractor struct {
	infer  bool
	logger *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithInference enables creating operations from suggestion arrays such as
// "campaigns" or "posts" whose items set a create flag.
func WithInference(enabled bool) ExtractorOption {
	return func(e *Extractor) {
		e.infer = enabled
	}
}

// WithExtractorLogger sets the logger that receives extraction warnings.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the operations from successful tool results in call order,
// then those embedded in the output's reserved field, then inferred ones.
// Nothing is deduplicated. Extract never fails: problems are recorded in the
// diagnostics and the offending entry is skipped.
func (e *Extractor) Extract(output Output, results []tools.Result, scope Scope) Extraction {
	x := &extraction{scope: scope}

	for i, r := range results {
		if !r.Success || r.Operation == nil {
			continue
		}
		x.add(r.Operation.Clone(), sourceToolResult, i)
	}

	cleaned := output
	if raw, ok := output.Get(ReservedField); ok {
		cleaned = output.Without(ReservedField)
		x.embedded(raw)
	}

	if e.infer && cleaned.Kind() == OutputStructured {
		for _, op := range infer(cleaned.Fields(), scope, x) {
			x.add(op, sourceInferred, -1)
		}
	}

	for _, w := range x.diag.Warnings {
		e.logger.Warn("operation skipped", "code", w.Code, "source", w.Source, "index", w.Index, "reason", w.Message)
	}

	ops := x.ops
	if ops == nil {
		ops = []entity.Operation{}
	}
	return Extraction{Output: cleaned, Operations: ops, Diagnostics: x.diag}
}

// extraction accumulates state for one Extract call.
type extraction struct {
	scope Scope
	ops   []entity.Operation
	diag  Diagnostics
}

func (x *extraction) warn(code, source string, index int, format string, args ...any) {
	x.diag.Warnings = append(x.diag.Warnings, Warning{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Source:  source,
		Index:   index,
	})
}

func (x *extraction) malformed(index int, format string, args ...any) {
	x.diag.Malformed++
	x.warn(WarnMalformedOperation, sourceEmbedded, index, format, args...)
}

// add applies the scoping rules and keeps op when it can be attributed.
func (x *extraction) add(op entity.Operation, source string, index int) {
	if op.Type.NeedsBrand() {
		if op.BrandID == "" {
			op.BrandID = x.scope.BrandID
		}
		if op.BrandID == "" {
			x.warn(WarnMissingBrand, source, index, "%s operation has no brand and none is active", op.Type)
			return
		}
	} else {
		if op.OrganizationID == "" {
			op.OrganizationID = x.scope.OrganizationID
		}
		if op.OrganizationID == "" {
			x.warn(WarnMissingOrganization, source, index, "%s operation has no organization", op.Type)
			return
		}
	}
	x.ops = append(x.ops, op)
}

// embedded scans the reserved field. It is re-encoded and walked with
// jsonparser so that one bad entry cannot poison the rest.
func (x *extraction) embedded(raw any) {
	data, err := json.Marshal(raw)
	if err != nil {
		x.malformed(-1, "%s is not encodable: %v", ReservedField, err)
		return
	}
	if _, typ, _, err := jsonparser.Get(data); err != nil || typ != jsonparser.Array {
		x.malformed(-1, "%s must be an array", ReservedField)
		return
	}

	i := 0
	_, err = jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, _ error) {
		idx := i
		i++
		if typ != jsonparser.Object {
			x.malformed(idx, "entry is a %s, not an object", typ)
			return
		}
		op, err := entity.DecodeOperation(value)
		if err != nil {
			x.malformed(idx, "%v", err)
			return
		}
		if err := op.Validate(); err != nil {
			var oe *entity.OperationError
			if errors.As(err, &oe) && oe.Field != "" {
				x.malformed(idx, "%s: %s", oe.Field, oe.Reason)
				return
			}
			x.malformed(idx, "%v", err)
			return
		}
		x.add(op, sourceEmbedded, idx)
	})
	if err != nil {
		x.malformed(-1, "%s could not be scanned: %v", ReservedField, err)
	}
}
