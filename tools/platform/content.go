package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

var contentFields = map[string]string{
	"content_type": "type",
	"channel":      "channel",
	"title":        "title",
	"body":         "body",
	"media_urls":   "mediaUrls",
	"scheduled_at": "scheduledAt",
	"status":       "status",
}

var urlItems = map[string]any{"type": "string", "format": "uri"}

func createContent() tools.Definition {
	return tools.Definition{
		Name: "create_content",
		Description: "Create a content item (post, email, ad copy, landing page) for a brand, " +
			"optionally linked to a campaign. Returns a content creation operation that the platform applies.",
		Category: tools.CategoryEntity,
		Parameters: []tools.Parameter{
			{Name: "brand_id", Type: tools.TypeString, Description: "Brand the content belongs to. Defaults to the active brand."},
			{Name: "content_type", Type: tools.TypeEnum, Description: "Kind of content", Required: true, Enum: entity.ContentTypes},
			{Name: "channel", Type: tools.TypeEnum, Description: "Channel the content is published on", Required: true, Enum: entity.Channels},
			{Name: "body", Type: tools.TypeString, Description: "Full content body", Required: true},
			{Name: "title", Type: tools.TypeString, Description: "Title or headline (max 200 characters)"},
			{Name: "campaign_id", Type: tools.TypeString, Description: "Campaign to link the content to"},
			{Name: "media_urls", Type: tools.TypeArray, Description: "Image or video URLs", Items: urlItems},
			{Name: "scheduled_at", Type: tools.TypeString, Description: "Publish time (ISO 8601)"},
		},
		Handler: handleCreateContent,
	}
}

func handleCreateContent(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	brand, fail := brandID(args, call)
	if fail != nil {
		return *fail, nil
	}
	data := map[string]any{"status": "DRAFT"}
	copyArgs(args, data, contentFields)

	op := entity.Operation{
		Type:    entity.OpCreateContent,
		BrandID: brand,
		Data:    data,
	}
	if id, ok := args.String("campaign_id"); ok {
		op.CampaignID = id
	}

	return emit(op, call, map[string]any{
		"message":      fmt.Sprintf("Content '%s' will be created", describeContent(args)),
		"brand_id":     brand,
		"content_type": data["type"],
		"channel":      data["channel"],
	}), nil
}

func updateContent() tools.Definition {
	return tools.Definition{
		Name: "update_content",
		Description: "Update an existing content item. Only provide the fields you want to change. " +
			"Returns an update operation that the platform applies.",
		Category: tools.CategoryEntity,
		Parameters: []tools.Parameter{
			{Name: "content_id", Type: tools.TypeString, Description: "ID of the content to update", Required: true},
			{Name: "content_type", Type: tools.TypeEnum, Description: "New content type", Enum: entity.ContentTypes},
			{Name: "channel", Type: tools.TypeEnum, Description: "New channel", Enum: entity.Channels},
			{Name: "title", Type: tools.TypeString, Description: "New title (max 200 characters)"},
			{Name: "body", Type: tools.TypeString, Description: "New body"},
			{Name: "media_urls", Type: tools.TypeArray, Description: "New media URLs", Items: urlItems},
			{Name: "scheduled_at", Type: tools.TypeString, Description: "New publish time (ISO 8601)"},
			{Name: "status", Type: tools.TypeEnum, Description: "New content status", Enum: entity.ContentStatuses},
		},
		Handler: handleUpdateContent,
	}
}

func handleUpdateContent(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	id, _ := args.String("content_id")
	data := map[string]any{}
	copyArgs(args, data, contentFields)
	if len(data) == 0 {
		return tools.Fail(tools.CodeInvalidArguments, "no fields provided to update"), nil
	}

	return emit(entity.Operation{
		Type:     entity.OpUpdateContent,
		BrandID:  call.Entity.BrandID,
		TargetID: id,
		Data:     data,
	}, call, map[string]any{
		"message":    fmt.Sprintf("Content %s will be updated", id),
		"content_id": id,
		"updates":    sortedKeys(data),
	}), nil
}

// describeContent names content by its title, else the start of its body.
func describeContent(args tools.Args) string {
	if title := args.StringOr("title", ""); title != "" {
		return title
	}
	body := strings.TrimSpace(args.StringOr("body", ""))
	if r := []rune(body); len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return body
}
