package platform

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/martinemde/entityagent/entity"
	"github.com/martinemde/entityagent/tools"
)

type searchArgs struct {
	Query      string `json:"query" jsonschema_description:"What to look for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"default=5" jsonschema_description:"Maximum passages to return"`
	FilterType string `json:"filter_type,omitempty" jsonschema_description:"Only return passages whose source type matches"`
}

func searchKnowledgeBase() tools.Definition {
	return tools.Definition{
		Name: "search_knowledge_base",
		Description: "Search the brand's knowledge base (documents, past content, guidelines) " +
			"for passages relevant to a query.",
		Category:    tools.CategoryKnowledge,
		Independent: true,
		Parameters:  tools.ParametersFor[searchArgs](),
		Handler:     handleSearchKnowledgeBase,
	}
}

type scoredPassage struct {
	passage entity.Passage
	score   int
}

// handleSearchKnowledgeBase ranks the pre-retrieved passages by how many
// query terms they contain. Passages with no matching term are left out.
func handleSearchKnowledgeBase(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	query, _ := args.String("query")
	limit, ok := args.Int("max_results")
	if !ok || limit <= 0 {
		limit = 5
	}
	filter := args.StringOr("filter_type", "")
	terms := strings.Fields(strings.ToLower(query))

	var hits []scoredPassage
	for _, p := range call.Entity.Retrieval {
		if filter != "" && !strings.EqualFold(p.Metadata["type"], filter) {
			continue
		}
		text := strings.ToLower(p.Content + " " + p.Source)
		score := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scoredPassage{passage: p, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scoredPassage) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		r := map[string]any{
			"content": h.passage.Content,
			"source":  h.passage.Source,
		}
		if h.passage.SourceID != "" {
			r["source_id"] = h.passage.SourceID
		}
		if h.passage.Relevance != nil {
			r["relevance"] = *h.passage.Relevance
		}
		results = append(results, r)
	}
	return tools.OK(map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	}), nil
}

func getBrandGuidelines() tools.Definition {
	return tools.Definition{
		Name:        "get_brand_guidelines",
		Description: "Get a brand's voice guidelines: tone, personality, target audience, values and words to avoid.",
		Category:    tools.CategoryKnowledge,
		Independent: true,
		Parameters: []tools.Parameter{
			{Name: "brand_id", Type: tools.TypeString, Description: "Brand to look up. Defaults to the active brand."},
		},
		Handler: handleGetBrandGuidelines,
	}
}

func handleGetBrandGuidelines(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	id, fail := brandID(args, call)
	if fail != nil {
		return *fail, nil
	}

	ec := call.Entity
	var voice *entity.Voice
	out := map[string]any{"brand_id": id}
	for _, b := range ec.Brands {
		if b.ID == id {
			out["name"] = b.Name
			voice = b.Voice
			break
		}
	}
	if id == ec.BrandID {
		voice = ec.EffectiveVoice()
	}
	if voice.IsZero() {
		return tools.Fail(tools.CodeHandlerError, "no voice guidelines available for brand %s", id), nil
	}

	out["tone"] = voice.Tone
	out["personality"] = voice.Personality
	out["vocabulary"] = voice.Vocabulary
	out["avoid_words"] = voice.AvoidWords
	out["target_audience"] = voice.TargetAudience
	out["brand_values"] = voice.BrandValues
	return tools.OK(out), nil
}

func getCampaignPerformance() tools.Definition {
	return tools.Definition{
		Name:        "get_campaign_performance",
		Description: "Get campaigns with engagement metrics aggregated from their recent content.",
		Category:    tools.CategoryKnowledge,
		Independent: true,
		Parameters: []tools.Parameter{
			{Name: "brand_id", Type: tools.TypeString, Description: "Brand whose campaigns to report. Only the active brand's campaigns are available."},
			{Name: "limit", Type: tools.TypeInteger, Description: "Maximum campaigns to return", Default: 10},
			{Name: "status", Type: tools.TypeEnum, Description: "Only campaigns with this status", Enum: entity.CampaignStatuses},
		},
		Handler: handleGetCampaignPerformance,
	}
}

type campaignMetrics struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	ContentsCount  int     `json:"contents_count"`
	Impressions    int     `json:"impressions"`
	Engagements    int     `json:"engagements"`
	Clicks         int     `json:"clicks"`
	EngagementRate float64 `json:"engagement_rate"`
}

func handleGetCampaignPerformance(_ context.Context, args tools.Args, call tools.CallContext) (tools.Result, error) {
	id, fail := brandID(args, call)
	if fail != nil {
		return *fail, nil
	}
	// The snapshot only carries the active brand's campaigns.
	if id != call.Entity.BrandID {
		return tools.Fail(tools.CodeHandlerError, "campaign performance is only available for the active brand %s", call.Entity.BrandID).
			WithDetails(map[string]any{"brand_id": id}), nil
	}
	limit, ok := args.Int("limit")
	if !ok || limit <= 0 {
		limit = 10
	}

	campaigns := call.Entity.CampaignsWithStatus(args.StringOr("status", ""))
	out := make([]campaignMetrics, 0, min(limit, len(campaigns)))
	for _, c := range campaigns {
		if len(out) == limit {
			break
		}
		m := campaignMetrics{ID: c.ID, Name: c.Name, Status: c.Status, ContentsCount: c.ContentsCount}
		for _, ct := range call.Entity.RecentContent {
			if ct.CampaignID != c.ID {
				continue
			}
			m.Impressions += ct.Impressions
			m.Engagements += ct.Engagements
			m.Clicks += ct.Clicks
		}
		if m.Impressions > 0 {
			m.EngagementRate = float64(m.Engagements) / float64(m.Impressions)
		}
		out = append(out, m)
	}
	return tools.OK(map[string]any{
		"brand_id":  id,
		"campaigns": out,
	}), nil
}
