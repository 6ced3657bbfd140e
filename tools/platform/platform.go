// Package platform provides the built-in marketing-platform tool set.
//
// Entity tools (create_brand, create_campaign, update_campaign,
// create_content, update_content) never write anything themselves; they
// validate their arguments and return an entity.Operation for the platform
// to apply. Knowledge tools answer from the execution's entity.Context.
package platform

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

// Definitions returns the full platform tool set in a stable order.
func Definitions() []tools.Definition {
	return []tools.Definition{
		createBrand(),
		createCampaign(),
		updateCampaign(),
		createContent(),
		updateContent(),
		searchKnowledgeBase(),
		getBrandGuidelines(),
		getCampaignPerformance(),
	}
}

// Register adds every platform tool to reg.
func Register(reg *tools.Registry) error {
	for _, d := range Definitions() {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding only the platform tools.
func NewRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.MustRegister(Definitions()...)
	return reg
}

// emit validates op and wraps it in a successful result. Validation failures
// come back as INVALID_ARGUMENTS naming the offending field so the model can
// correct the call.
func emit(op entity.Operation, call tools.CallContext, summary map[string]any) tools.Result {
	op.Metadata = &entity.OperationMetadata{
		AIGenerated:       true,
		SourceExecutionID: call.ExecutionID,
	}
	if err := op.Validate(); err != nil {
		var oe *entity.OperationError
		if errors.As(err, &oe) {
			return tools.Fail(tools.CodeInvalidArguments, "%s", oe.Error()).
				WithDetails(map[string]any{"field": argName(oe.Field)})
		}
		return tools.Fail(tools.CodeInvalidArguments, "%s", err.Error())
	}
	summary["operation_type"] = string(op.Type)
	return tools.OKWithOperation(summary, op)
}

// brandID resolves the brand argument, falling back to the active brand.
func brandID(args tools.Args, call tools.CallContext) (string, *tools.Result) {
	id := args.StringOr("brand_id", call.Entity.BrandID)
	if id == "" {
		res := tools.Fail(tools.CodeInvalidArguments, "brand_id is required when no brand is active").
			WithDetails(map[string]any{"field": "brand_id"})
		return "", &res
	}
	return id, nil
}

// copyArgs moves present arguments into data under their payload names.
func copyArgs(args tools.Args, data map[string]any, names map[string]string) {
	for arg, field := range names {
		if args.Has(arg) {
			data[field] = args[arg]
		}
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// argName maps a payload path such as "data.voiceSettings.targetAudience"
// or "data.channels[0]" back to the snake_case argument the model supplied.
func argName(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	if i := strings.Index(field, "["); i >= 0 {
		field = field[:i]
	}
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
