// Package injector renders an entity.Context into prompt text for the
// system message. Rendering is pure: identical contexts yield identical text,
// and sections whose source is empty are left out entirely.
package injector

import (
	"fmt"
	"strings"

	"github.com/martinemde/entityagent/entity"
)

// Section identifies one block of rendered context.
type Section int

const (
	SectionBrands Section = iota
	SectionVoice
	SectionCampaigns
	SectionContent
	SectionRetrieval
)

// AllSections lists every section in rendering order.
var AllSections = []Section{SectionBrands, SectionVoice, SectionCampaigns, SectionContent, SectionRetrieval}

const (
	DefaultMaxItems        = 10
	DefaultRetrievalBudget = 4000
	brandDescriptionLimit  = 200
	campaignGoalLimit      = 150
	contentPreviewLimit    = 50
	vocabularyLimit        = 10
	// A truncated passage is only kept when at least this much budget is left.
	minPassageRemainder = 100
)

// Injector renders context sections. The zero value is not usable; use New.
type Injector struct {
	maxItems        int
	retrievalBudget int
	sections        map[Section]bool
}

// Option configures an Injector.
type Option func(*Injector)

// WithMaxItems caps the brands, campaigns and content items listed.
func WithMaxItems(n int) Option {
	return func(i *Injector) {
		if n > 0 {
			i.maxItems = n
		}
	}
}

// WithRetrievalBudget sets the character budget for retrieval passages.
func WithRetrievalBudget(chars int) Option {
	return func(i *Injector) {
		if chars > 0 {
			i.retrievalBudget = chars
		}
	}
}

// WithSections restricts rendering to the given sections. Order is always
// the fixed rendering order regardless of argument order.
func WithSections(sections ...Section) Option {
	return func(i *Injector) {
		i.sections = make(map[Section]bool, len(sections))
		for _, s := range sections {
			i.sections[s] = true
		}
	}
}

// New creates an Injector.
func New(opts ...Option) *Injector {
	i := &Injector{
		maxItems:        DefaultMaxItems,
		retrievalBudget: DefaultRetrievalBudget,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Minimal renders only voice guidelines and retrieval passages, for
// token-constrained prompts.
func Minimal() *Injector {
	return New(WithSections(SectionVoice, SectionRetrieval))
}

var defaultInjector = New()

// Build renders ctx with default settings.
func Build(ctx entity.Context) string {
	return defaultInjector.Build(ctx)
}

// Build renders ctx. The result is empty when every section is empty.
func (i *Injector) Build(ctx entity.Context) string {
	var parts []string
	for _, s := range AllSections {
		if i.sections != nil && !i.sections[s] {
			continue
		}
		var text string
		switch s {
		case SectionBrands:
			text = i.brands(ctx.Brands)
		case SectionVoice:
			text = voice(ctx.EffectiveVoice())
		case SectionCampaigns:
			text = i.campaigns(ctx.Campaigns)
		case SectionContent:
			text = i.content(ctx.RecentContent)
		case SectionRetrieval:
			text = i.retrieval(ctx.Retrieval)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Append adds rendered context to a system prompt. The prompt is returned
// unchanged when there is no context.
func Append(systemPrompt, context string) string {
	if context == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + context
}

func (i *Injector) brands(brands []entity.Brand) string {
	if len(brands) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Available Brands")
	for _, b := range brands[:min(len(brands), i.maxItems)] {
		fmt.Fprintf(&sb, "\n- **%s** (ID: %s)", b.Name, b.ID)
		if b.Description != "" {
			fmt.Fprintf(&sb, "\n  - Description: %s", truncate(b.Description, brandDescriptionLimit))
		}
		fmt.Fprintf(&sb, "\n  - Campaigns: %d, Content: %d", b.CampaignsCount, b.ContentsCount)
	}
	return sb.String()
}

func voice(v *entity.Voice) string {
	if v.IsZero() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Brand Voice Guidelines")
	if v.Tone != "" {
		fmt.Fprintf(&sb, "\n- **Tone**: %s", v.Tone)
	}
	if len(v.Personality) > 0 {
		fmt.Fprintf(&sb, "\n- **Personality**: %s", strings.Join(v.Personality, ", "))
	}
	if v.TargetAudience != "" {
		fmt.Fprintf(&sb, "\n- **Target Audience**: %s", v.TargetAudience)
	}
	if len(v.BrandValues) > 0 {
		fmt.Fprintf(&sb, "\n- **Brand Values**: %s", strings.Join(v.BrandValues, ", "))
	}
	if len(v.Vocabulary) > 0 {
		fmt.Fprintf(&sb, "\n- **Vocabulary**: %s", strings.Join(v.Vocabulary[:min(len(v.Vocabulary), vocabularyLimit)], ", "))
	}
	if len(v.AvoidWords) > 0 {
		fmt.Fprintf(&sb, "\n- **Avoid**: %s", strings.Join(v.AvoidWords, ", "))
	}
	return sb.String()
}

func (i *Injector) campaigns(campaigns []entity.Campaign) string {
	if len(campaigns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Active Campaigns")
	for _, c := range campaigns[:min(len(campaigns), i.maxItems)] {
		fmt.Fprintf(&sb, "\n- **%s** (ID: %s, Status: %s)", c.Name, c.ID, c.Status)
		if c.Goal != "" {
			fmt.Fprintf(&sb, "\n  - Goal: %s", truncate(c.Goal, campaignGoalLimit))
		}
		if c.TargetAudience != "" {
			fmt.Fprintf(&sb, "\n  - Target Audience: %s", c.TargetAudience)
		}
		if len(c.Channels) > 0 {
			fmt.Fprintf(&sb, "\n  - Channels: %s", strings.Join(c.Channels, ", "))
		}
		fmt.Fprintf(&sb, "\n  - Content Pieces: %d", c.ContentsCount)
	}
	return sb.String()
}

func (i *Injector) content(items []entity.Content) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Recent Content")
	for _, c := range items[:min(len(items), i.maxItems)] {
		title := c.Title
		if title == "" {
			title = truncate(c.Body, contentPreviewLimit)
		}
		fmt.Fprintf(&sb, "\n- **%s** (%s, %s)", title, c.Type, c.Channel)
		if c.Status != "" {
			fmt.Fprintf(&sb, "\n  - Status: %s", c.Status)
		}
		if c.Impressions > 0 || c.Engagements > 0 {
			fmt.Fprintf(&sb, "\n  - Metrics: %d impressions, %d engagements, %d clicks", c.Impressions, c.Engagements, c.Clicks)
		}
		if c.CampaignName != "" {
			fmt.Fprintf(&sb, "\n  - Campaign: %s", c.CampaignName)
		}
	}
	return sb.String()
}

func (i *Injector) retrieval(passages []entity.Passage) string {
	text := FormatPassages(passages, i.retrievalBudget)
	if text == "" {
		return ""
	}
	return "## Knowledge Base Context\n" +
		"Use the following information from past campaigns and content to inform your response:\n\n" +
		text
}

// FormatPassages renders passages under "[Source i: name]" headers within a
// character budget. The passage that crosses the budget is cut short when
// enough room remains, and everything after it is dropped.
func FormatPassages(passages []entity.Passage, budget int) string {
	var blocks []string
	used := 0
	for n, p := range passages {
		header := fmt.Sprintf("[Source %d]", n+1)
		if p.Source != "" {
			header = fmt.Sprintf("[Source %d: %s]", n+1, p.Source)
		}
		block := header + "\n" + p.Content + "\n"
		size := len([]rune(block))
		if used+size > budget {
			remaining := budget - used
			keep := remaining - len([]rune(header)) - 20
			if remaining > minPassageRemainder && keep > 0 {
				blocks = append(blocks, header+"\n"+string([]rune(p.Content)[:keep])+"...\n")
			}
			break
		}
		blocks = append(blocks, block)
		used += size
	}
	return strings.TrimRight(strings.Join(blocks, "\n"), "\n")
}

// truncate cuts s to limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
