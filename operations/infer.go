package operations

import (
	"slices"
	"strings"

	"github.com/martinemde/entityagent/entity"
)

// Suggestion arrays recognized by inference, and the item flags that mark a
// suggestion for creation.
var (
	campaignKeys = []string{"campaigns", "campaignOptions", "suggestedCampaigns", "campaignProposals"}
	contentKeys  = []string{"contents", "contentItems", "suggestedContent", "posts", "socialPosts", "contentCalendar"}
	createFlags  = []string{"createInSystem", "saveToDatabase", "autoCreate", "save", "create"}
)

var contentTypeAliases = map[string]string{
	"blog":         "BLOG_POST",
	"blog_post":    "BLOG_POST",
	"blogpost":     "BLOG_POST",
	"social":       "SOCIAL_POST",
	"social_post":  "SOCIAL_POST",
	"socialpost":   "SOCIAL_POST",
	"post":         "SOCIAL_POST",
	"email":        "EMAIL",
	"ad":           "AD_COPY",
	"ad_copy":      "AD_COPY",
	"adcopy":       "AD_COPY",
	"landing":      "LANDING_PAGE",
	"landing_page": "LANDING_PAGE",
	"landingpage":  "LANDING_PAGE",
}

// infer builds create operations from flagged suggestion items. Items that
// produce an invalid operation are skipped with a warning.
func infer(fields *Fields, scope Scope, x *extraction) []entity.Operation {
	brand := firstString(fieldMap(fields), "brandId")
	if scope.BrandID != "" {
		brand = scope.BrandID
	}
	campaign := firstString(fieldMap(fields), "campaignId")

	var ops []entity.Operation
	for _, key := range campaignKeys {
		for i, item := range flagged(fields, key) {
			op := entity.Operation{
				Type:    entity.OpCreateCampaign,
				BrandID: or(firstString(item, "brandId", "brand_id"), brand),
				Data: compact(map[string]any{
					"name":           item["name"],
					"description":    item["description"],
					"goal":           item["goal"],
					"targetAudience": first(item, "targetAudience", "target_audience"),
					"channels":       orDefault(item["channels"], []any{}),
					"status":         "DRAFT",
					"startDate":      first(item, "startDate", "start_date"),
					"endDate":        first(item, "endDate", "end_date"),
				}),
			}
			if keep(op, key, i, x) {
				ops = append(ops, withProvenance(op, scope))
			}
		}
	}
	for _, key := range contentKeys {
		for i, item := range flagged(fields, key) {
			op := entity.Operation{
				Type:       entity.OpCreateContent,
				BrandID:    or(firstString(item, "brandId", "brand_id"), brand),
				CampaignID: or(firstString(item, "campaignId", "campaign_id"), campaign),
				Data: compact(map[string]any{
					"type":        inferContentType(item),
					"channel":     orDefault(item["channel"], "linkedin"),
					"title":       item["title"],
					"body":        first(item, "body", "content", "text", "message"),
					"status":      "DRAFT",
					"mediaUrls":   first(item, "mediaUrls", "media_urls"),
					"scheduledAt": first(item, "scheduledAt", "scheduled_at"),
				}),
			}
			if keep(op, key, i, x) {
				ops = append(ops, withProvenance(op, scope))
			}
		}
	}
	return ops
}

func keep(op entity.Operation, key string, index int, x *extraction) bool {
	if err := op.Validate(); err != nil {
		x.warn(WarnInferenceSkipped, sourceInferred+":"+key, index, "%v", err)
		return false
	}
	return true
}

func withProvenance(op entity.Operation, scope Scope) entity.Operation {
	op.Metadata = &entity.OperationMetadata{AIGenerated: true, SourceExecutionID: or(scope.ExecutionID, "inferred")}
	return op
}

// flagged returns the object items of fields[key] that carry a create flag.
func flagged(fields *Fields, key string) []map[string]any {
	raw, ok := fields.Get(key)
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if slices.ContainsFunc(createFlags, func(f string) bool { b, _ := m[f].(bool); return b }) {
			out = append(out, m)
		}
	}
	return out
}

func inferContentType(item map[string]any) string {
	if explicit := firstString(item, "type", "contentType"); explicit != "" {
		if t, ok := contentTypeAliases[strings.ReplaceAll(strings.ToLower(explicit), "-", "_")]; ok {
			return t
		}
		if slices.Contains(entity.ContentTypes, strings.ToUpper(explicit)) {
			return strings.ToUpper(explicit)
		}
	}
	switch strings.ToLower(firstString(item, "channel")) {
	case "blog":
		return "BLOG_POST"
	case "email":
		return "EMAIL"
	default:
		return "SOCIAL_POST"
	}
}

func fieldMap(fields *Fields) map[string]any {
	m := make(map[string]any, fields.Len())
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
	}
	return m
}

// first returns the first present, non-empty value among keys.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	s, _ := first(m, keys...).(string)
	return s
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func orDefault(v, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

// compact drops nil entries.
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	return m
}
