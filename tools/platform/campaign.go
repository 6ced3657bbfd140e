package platform

import (
	"context"
	"fmt"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

// campaignFields maps optional tool arguments to campaign payload fields.
var campaignFields = map[string]string{
	"name":            "name",
	"description":     "description",
	"goal":            "goal",
	"target_audience": "targetAudience",
	"channels":        "channels",
	"status":          "status",
	"start_date":      "startDate",
	"end_date":        "endDate",
}

var channelItems = map[string]any{"type": "string", "enum": entity.Channels}

func createCampaign() tools.Definition {
	return tools.Definition{
		Name: "create_campaign",
		Description: "Create a new marketing campaign for a brand. " +
			"Returns a campaign creation operation that the platform applies. " +
			"Use this when the user wants a new campaign with specific goals and channels.",
		Category: tools.CategoryEntity,
		Parameters: []tools.Parameter{
			{Name: "brand_id", Type: tools.TypeString, Description: "Brand to create the campaign for. Defaults to the active brand."},
			{Name: "name", Type: tools.TypeString, Description: "Campaign name (2-200 characters)", Required: true},
			{Name: "channels", Type: tools.TypeArray, Description: "Marketing channels for the campaign", Required: true, Items: channelItems},
			{Name: "description", Type: tools.TypeString, Description: "Campaign description (max 1000 characters)"},
			{Name: "goal", Type: tools.TypeString, Description: "Campaign goal or objective (max 500 characters)"},
			{Name: "target_audience", Type: tools.TypeString, Description: "Target audience description (max 500 characters)"},
			{Name: "start_date", Type: tools.TypeString, Description: "Campaign start date (ISO 8601)"},
			{Name: "end_date", Type: tools.TypeString, Description: "Campaign end date (ISO 8601)"},
		},
		Handler: handleCreateCampaign,
	}
}

func handleCreateCampaign(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	brand, fail := brandID(args, call)
	if fail != nil {
		return *fail, nil
	}
	data := map[string]any{"status": "DRAFT"}
	copyArgs(args, data, campaignFields)

	name, _ := args.String("name")
	return emit(entity.Operation{
		Type:    entity.OpCreateCampaign,
		BrandID: brand,
		Data:    data,
	}, call, map[string]any{
		"message":  fmt.Sprintf("Campaign '%s' will be created", name),
		"brand_id": brand,
	}), nil
}

func updateCampaign() tools.Definition {
	return tools.Definition{
		Name: "update_campaign",
		Description: "Update an existing campaign. Only provide the fields you want to change. " +
			"Returns an update operation that the platform applies.",
		Category: tools.CategoryEntity,
		Parameters: []tools.Parameter{
			{Name: "campaign_id", Type: tools.TypeString, Description: "ID of the campaign to update", Required: true},
			{Name: "name", Type: tools.TypeString, Description: "New campaign name (2-200 characters)"},
			{Name: "description", Type: tools.TypeString, Description: "New description (max 1000 characters)"},
			{Name: "goal", Type: tools.TypeString, Description: "New goal (max 500 characters)"},
			{Name: "target_audience", Type: tools.TypeString, Description: "New target audience (max 500 characters)"},
			{Name: "channels", Type: tools.TypeArray, Description: "New list of channels", Items: channelItems},
			{Name: "status", Type: tools.TypeEnum, Description: "New campaign status", Enum: entity.CampaignStatuses},
			{Name: "start_date", Type: tools.TypeString, Description: "New start date (ISO 8601)"},
			{Name: "end_date", Type: tools.TypeString, Description: "New end date (ISO 8601)"},
		},
		Handler: handleUpdateCampaign,
	}
}

func handleUpdateCampaign(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	id, _ := args.String("campaign_id")
	data := map[string]any{}
	copyArgs(args, data, campaignFields)
	if len(data) == 0 {
		return tools.Fail(tools.CodeInvalidArguments, "no fields provided to update"), nil
	}

	return emit(entity.Operation{
		Type:     entity.OpUpdateCampaign,
		BrandID:  call.Entity.BrandID,
		TargetID: id,
		Data:     data,
	}, call, map[string]any{
		"message":     fmt.Sprintf("Campaign %s will be updated", id),
		"campaign_id": id,
		"updates":     sortedKeys(data),
	}), nil
}
