package platform

import (
	"context"
	"fmt"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

var brandFields = map[string]string{
	"name":          "name",
	"slug":          "slug",
	"description":   "description",
	"primary_color": "primaryColor",
	"logo_url":      "logoUrl",
}

var voiceFields = map[string]string{
	"tone":            "tone",
	"personality":     "personality",
	"target_audience": "targetAudience",
	"brand_values":    "brandValues",
	"avoid_words":     "avoidWords",
}

var stringItems = map[string]any{"type": "string"}

func createBrand() tools.Definition {
	return tools.Definition{
		Name: "create_brand",
		Description: "Create a new brand with its voice settings inside an organization. " +
			"Returns a brand creation operation that the platform applies.",
		Category: tools.CategoryEntity,
		Parameters: []tools.Parameter{
			{Name: "organization_id", Type: tools.TypeString, Description: "Organization that owns the brand. Defaults to the caller's organization."},
			{Name: "name", Type: tools.TypeString, Description: "Brand name (2-100 characters)", Required: true},
			{Name: "slug", Type: tools.TypeString, Description: "URL-safe identifier: lowercase letters, digits and hyphens (2-50 characters)", Required: true},
			{Name: "description", Type: tools.TypeString, Description: "Brand description (max 1000 characters)"},
			{Name: "tone", Type: tools.TypeEnum, Description: "Voice tone", Enum: entity.BrandTones},
			{Name: "personality", Type: tools.TypeArray, Description: "Personality traits (max 5)", Items: stringItems},
			{Name: "target_audience", Type: tools.TypeString, Description: "Target audience (max 500 characters)"},
			{Name: "brand_values", Type: tools.TypeArray, Description: "Core brand values", Items: stringItems},
			{Name: "avoid_words", Type: tools.TypeArray, Description: "Words the brand never uses", Items: stringItems},
			{Name: "primary_color", Type: tools.TypeString, Description: "Primary color as #RRGGBB"},
			{Name: "logo_url", Type: tools.TypeString, Description: "Logo image URL"},
		},
		Handler: handleCreateBrand,
	}
}

func handleCreateBrand(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	org := args.StringOr("organization_id", call.Entity.OrganizationID)
	if org == "" {
		return tools.Fail(tools.CodeInvalidArguments, "organization_id is required when the caller has no organization").
			WithDetails(map[string]any{"field": "organization_id"}), nil
	}

	data := map[string]any{}
	copyArgs(args, data, brandFields)
	voice := map[string]any{}
	copyArgs(args, voice, voiceFields)
	if len(voice) > 0 {
		data["voiceSettings"] = voice
	}

	name, _ := args.String("name")
	slug, _ := args.String("slug")
	return emit(entity.Operation{
		Type:           entity.OpCreateBrand,
		OrganizationID: org,
		Data:           data,
	}, call, map[string]any{
		"message":         fmt.Sprintf("Brand '%s' will be created", name),
		"organization_id": org,
		"slug":            slug,
	}), nil
}
