package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WireContext is the camelCase payload the platform sends. Use Context to
// convert it into the internal shape.
type WireContext struct {
	UserID           string         `json:"userId"`
	BrandID          string         `json:"brandId,omitempty"`
	OrganizationID   string         `json:"organizationId,omitempty"`
	Brands           []WireBrand    `json:"brands,omitempty"`
	BrandVoice       *WireVoice     `json:"brandVoice,omitempty"`
	Campaigns        []WireCampaign `json:"campaigns,omitempty"`
	RecentContent    []WireContent  `json:"recentContent,omitempty"`
	RetrievalContext *WireRetrieval `json:"retrievalContext,omitempty"`
}

// WireBrand is the camelCase form of Brand.
type WireBrand struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug,omitempty"`
	Description    string     `json:"description,omitempty"`
	PrimaryColor   string     `json:"primaryColor,omitempty"`
	VoiceSettings  *WireVoice `json:"voiceSettings,omitempty"`
	CampaignsCount int        `json:"campaignsCount,omitempty"`
	ContentsCount  int        `json:"contentsCount,omitempty"`
}

// WireVoice is the camelCase form of Voice.
type WireVoice struct {
	Tone           string   `json:"tone,omitempty"`
	Personality    []string `json:"personality,omitempty"`
	Vocabulary     []string `json:"vocabulary,omitempty"`
	AvoidWords     []string `json:"avoidWords,omitempty"`
	TargetAudience string   `json:"targetAudience,omitempty"`
	BrandValues    []string `json:"brandValues,omitempty"`
}

// WireCampaign is the camelCase form of Campaign.
type WireCampaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status,omitempty"`
	Goal           string     `json:"goal,omitempty"`
	TargetAudience string     `json:"targetAudience,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Channels       []string   `json:"channels,omitempty"`
	ContentsCount  int        `json:"contentsCount,omitempty"`
}

// WireContent is the camelCase form of Content.
type WireContent struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Channel      string     `json:"channel"`
	Title        string     `json:"title,omitempty"`
	Body         string     `json:"body"`
	Status       string     `json:"status,omitempty"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	CampaignID   string     `json:"campaignId,omitempty"`
	CampaignName string     `json:"campaignName,omitempty"`
	AIGenerated  bool       `json:"aiGenerated,omitempty"`
	Impressions  int        `json:"impressions,omitempty"`
	Engagements  int        `json:"engagements,omitempty"`
	Clicks       int        `json:"clicks,omitempty"`
}

// WirePassage is the camelCase form of Passage.
type WirePassage struct {
	Content        string            `json:"content"`
	SourceID       string            `json:"sourceId,omitempty"`
	SourceName     string            `json:"sourceName,omitempty"`
	RelevanceScore *float64          `json:"relevanceScore,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// WireRetrieval accepts either a passage array or a pre-formatted string
// with "[Source n: name]" markers.
type WireRetrieval struct {
	Passages []WirePassage
	Text     string
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *WireRetrieval) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &r.Text)
	case '[':
		return json.Unmarshal(trimmed, &r.Passages)
	default:
		return fmt.Errorf("retrievalContext: expected string or array, got %q", trimmed[:1])
	}
}

// MarshalJSON implements json.Marshaler.
func (r WireRetrieval) MarshalJSON() ([]byte, error) {
	if r.Passages == nil {
		return json.Marshal(r.Text)
	}
	return json.Marshal(r.Passages)
}

// DecodeContext parses a camelCase payload into a Context.
func DecodeContext(data []byte) (Context, error) {
	var w WireContext
	if err := json.Unmarshal(data, &w); err != nil {
		return Context{}, fmt.Errorf("decode entity context: %w", err)
	}
	return w.Context(), nil
}

// Context maps the wire payload field by field into the internal model.
func (w WireContext) Context() Context {
	c := Context{
		UserID:         w.UserID,
		BrandID:        w.BrandID,
		OrganizationID: w.OrganizationID,
		Voice:          w.BrandVoice.voice(),
	}
	for _, b := range w.Brands {
		c.Brands = append(c.Brands, Brand{
			ID:             b.ID,
			Name:           b.Name,
			Slug:           b.Slug,
			Description:    b.Description,
			PrimaryColor:   b.PrimaryColor,
			Voice:          b.VoiceSettings.voice(),
			CampaignsCount: b.CampaignsCount,
			ContentsCount:  b.ContentsCount,
		})
	}
	for _, cp := range w.Campaigns {
		c.Campaigns = append(c.Campaigns, Campaign{
			ID:             cp.ID,
			Name:           cp.Name,
			Description:    cp.Description,
			Status:         cp.Status,
			Goal:           cp.Goal,
			TargetAudience: cp.TargetAudience,
			StartDate:      cp.StartDate,
			EndDate:        cp.EndDate,
			Channels:       cp.Channels,
			ContentsCount:  cp.ContentsCount,
		})
	}
	for _, ct := range w.RecentContent {
		c.RecentContent = append(c.RecentContent, Content{
			ID:           ct.ID,
			Type:         ct.Type,
			Channel:      ct.Channel,
			Title:        ct.Title,
			Body:         ct.Body,
			Status:       ct.Status,
			ScheduledAt:  ct.ScheduledAt,
			PublishedAt:  ct.PublishedAt,
			CampaignID:   ct.CampaignID,
			CampaignName: ct.CampaignName,
			AIGenerated:  ct.AIGenerated,
			Impressions:  ct.Impressions,
			Engagements:  ct.Engagements,
			Clicks:       ct.Clicks,
		})
	}
	if r := w.RetrievalContext; r != nil {
		if r.Passages != nil {
			for _, p := range r.Passages {
				c.Retrieval = append(c.Retrieval, Passage{
					Content:   p.Content,
					SourceID:  p.SourceID,
					Source:    p.SourceName,
					Relevance: p.RelevanceScore,
					Metadata:  p.Metadata,
				})
			}
		} else {
			c.Retrieval = ParseRetrievalText(r.Text)
		}
	}
	return c
}

// Wire maps the internal model back into the camelCase payload.
func (c Context) Wire() WireContext {
	w := WireContext{
		UserID:         c.UserID,
		BrandID:        c.BrandID,
		OrganizationID: c.OrganizationID,
		BrandVoice:     wireVoice(c.Voice),
	}
	for _, b := range c.Brands {
		w.Brands = append(w.Brands, WireBrand{
			ID:             b.ID,
			Name:           b.Name,
			Slug:           b.Slug,
			Description:    b.Description,
			PrimaryColor:   b.PrimaryColor,
			VoiceSettings:  wireVoice(b.Voice),
			CampaignsCount: b.CampaignsCount,
			ContentsCount:  b.ContentsCount,
		})
	}
	for _, cp := range c.Campaigns {
		w.Campaigns = append(w.Campaigns, WireCampaign{
			ID:             cp.ID,
			Name:           cp.Name,
			Description:    cp.Description,
			Status:         cp.Status,
			Goal:           cp.Goal,
			TargetAudience: cp.TargetAudience,
			StartDate:      cp.StartDate,
			EndDate:        cp.EndDate,
			Channels:       cp.Channels,
			ContentsCount:  cp.ContentsCount,
		})
	}
	for _, ct := range c.RecentContent {
		w.RecentContent = append(w.RecentContent, WireContent{
			ID:           ct.ID,
			Type:         ct.Type,
			Channel:      ct.Channel,
			Title:        ct.Title,
			Body:         ct.Body,
			Status:       ct.Status,
			ScheduledAt:  ct.ScheduledAt,
			PublishedAt:  ct.PublishedAt,
			CampaignID:   ct.CampaignID,
			CampaignName: ct.CampaignName,
			AIGenerated:  ct.AIGenerated,
			Impressions:  ct.Impressions,
			Engagements:  ct.Engagements,
			Clicks:       ct.Clicks,
		})
	}
	if len(c.Retrieval) > 0 {
		r := &WireRetrieval{Passages: make([]WirePassage, 0, len(c.Retrieval))}
		for _, p := range c.Retrieval {
			r.Passages = append(r.Passages, WirePassage{
				Content:        p.Content,
				SourceID:       p.SourceID,
				SourceName:     p.Source,
				RelevanceScore: p.Relevance,
				Metadata:       p.Metadata,
			})
		}
		w.RetrievalContext = r
	}
	return w
}

func (v *WireVoice) voice() *Voice {
	if v == nil {
		return nil
	}
	return &Voice{
		Tone:           v.Tone,
		Personality:    v.Personality,
		Vocabulary:     v.Vocabulary,
		AvoidWords:     v.AvoidWords,
		TargetAudience: v.TargetAudience,
		BrandValues:    v.BrandValues,
	}
}

func wireVoice(v *Voice) *WireVoice {
	if v == nil {
		return nil
	}
	return &WireVoice{
		Tone:           v.Tone,
		Personality:    v.Personality,
		Vocabulary:     v.Vocabulary,
		AvoidWords:     v.AvoidWords,
		TargetAudience: v.TargetAudience,
		BrandValues:    v.BrandValues,
	}
}

// ParseRetrievalText splits a pre-formatted retrieval string on its
// "[Source n: name]" markers. Text without markers becomes one passage.
func ParseRetrievalText(text string) []Passage {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var passages []Passage
	parts := strings.Split(text, "[Source ")
	for _, part := range parts[1:] {
		end := strings.Index(part, "]")
		if end < 0 {
			continue
		}
		header := part[:end]
		p := Passage{Content: strings.TrimSpace(part[end+1:])}
		if _, name, ok := strings.Cut(header, ":"); ok {
			p.Source = strings.TrimSpace(name)
		}
		passages = append(passages, p)
	}
	if len(passages) == 0 {
		passages = append(passages, Passage{Content: text})
	}
	return passages
}
