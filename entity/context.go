package entity

import "time"

// Context is the snapshot of caller-domain state for one execution. It is
// owned by the caller and must not be mutated while an execution runs.
type Context struct {
	UserID         string
	BrandID        string
	OrganizationID string
	Brands         []Brand
	Voice          *Voice
	Campaigns      []Campaign
	RecentContent  []Content
	Retrieval      []Passage
}

// Brand summarizes a brand the user can act on.
type Brand struct {
	ID             string
	Name           string
	Slug           string
	Description    string
	PrimaryColor   string
	Voice          *Voice
	CampaignsCount int
	ContentsCount  int
}

// Voice holds brand voice and style guidelines.
type Voice struct {
	Tone           string
	Personality    []string
	Vocabulary     []string
	AvoidWords     []string
	TargetAudience string
	BrandValues    []string
}

// IsZero reports whether no guideline field is set.
func (v *Voice) IsZero() bool {
	return v == nil || (v.Tone == "" && len(v.Personality) == 0 && len(v.Vocabulary) == 0 &&
		len(v.AvoidWords) == 0 && v.TargetAudience == "" && len(v.BrandValues) == 0)
}

// Campaign summarizes an existing campaign.
type Campaign struct {
	ID             string
	Name           string
	Description    string
	Status         string
	Goal           string
	TargetAudience string
	StartDate      *time.Time
	EndDate        *time.Time
	Channels       []string
	ContentsCount  int
}

// Content summarizes a recently created content item.
type Content struct {
	ID           string
	Type         string
	Channel      string
	Title        string
	Body         string
	Status       string
	ScheduledAt  *time.Time
	PublishedAt  *time.Time
	CampaignID   string
	CampaignName string
	AIGenerated  bool
	Impressions  int
	Engagements  int
	Clicks       int
}

// Passage is one retrieved knowledge-base excerpt.
type Passage struct {
	Content   string
	SourceID  string
	Source    string
	Relevance *float64
	Metadata  map[string]string
}

// ActiveBrand returns the brand whose ID matches BrandID.
func (c Context) ActiveBrand() (Brand, bool) {
	if c.BrandID == "" {
		return Brand{}, false
	}
	for _, b := range c.Brands {
		if b.ID == c.BrandID {
			return b, true
		}
	}
	return Brand{}, false
}

// EffectiveVoice returns the explicit voice guidelines, falling back to the
// active brand's own voice settings.
func (c Context) EffectiveVoice() *Voice {
	if !c.Voice.IsZero() {
		return c.Voice
	}
	if b, ok := c.ActiveBrand(); ok && !b.Voice.IsZero() {
		return b.Voice
	}
	return nil
}

// CampaignsWithStatus returns campaigns filtered by status, or all of them
// when status is empty.
func (c Context) CampaignsWithStatus(status string) []Campaign {
	if status == "" {
		return c.Campaigns
	}
	var out []Campaign
	for _, cp := range c.Campaigns {
		if cp.Status == status {
			out = append(out, cp)
		}
	}
	return out
}
