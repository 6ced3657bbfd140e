package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Domain enumerations shared by tool declarations and payload validation.
var (
	Channels         = []string{"facebook", "instagram", "linkedin", "twitter", "blog", "email"}
	CampaignStatuses = []string{"DRAFT", "PENDING_APPROVAL", "APPROVED", "ACTIVE", "PAUSED", "COMPLETED", "ARCHIVED"}
	ContentTypes     = []string{"BLOG_POST", "SOCIAL_POST", "EMAIL", "AD_COPY", "LANDING_PAGE"}
	ContentStatuses  = []string{"DRAFT", "PENDING_REVIEW", "APPROVED", "SCHEDULED", "PUBLISHING", "PUBLISHED", "FAILED", "ARCHIVED"}
	BrandTones       = []string{"professional", "casual", "friendly", "authoritative", "playful"}
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// BrandPayload is the data of a create_brand operation.
type BrandPayload struct {
	Name          string        `json:"name" validate:"required,min=2,max=100"`
	Slug          string        `json:"slug" validate:"required,min=2,max=50,slug"`
	Description   string        `json:"description,omitempty" validate:"max=1000"`
	PrimaryColor  string        `json:"primaryColor,omitempty" validate:"omitempty,hexcolor6"`
	LogoURL       string        `json:"logoUrl,omitempty" validate:"omitempty,url"`
	VoiceSettings *VoicePayload `json:"voiceSettings,omitempty"`
}

// VoicePayload is the voice block nested in a brand payload.
type VoicePayload struct {
	Tone           string   `json:"tone,omitempty" validate:"omitempty,brand_tone"`
	Personality    []string `json:"personality,omitempty" validate:"max=5"`
	TargetAudience string   `json:"targetAudience,omitempty" validate:"max=500"`
	BrandValues    []string `json:"brandValues,omitempty"`
	AvoidWords     []string `json:"avoidWords,omitempty"`
}

// CampaignPayload is the data of a create_campaign operation.
type CampaignPayload struct {
	Name           string   `json:"name" validate:"required,min=2,max=200"`
	Channels       []string `json:"channels" validate:"required,min=1,dive,channel"`
	Description    string   `json:"description,omitempty" validate:"max=1000"`
	Goal           string   `json:"goal,omitempty" validate:"max=500"`
	TargetAudience string   `json:"targetAudience,omitempty" validate:"max=500"`
	Status         string   `json:"status,omitempty" validate:"omitempty,campaign_status"`
	StartDate      string   `json:"startDate,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
}

// CampaignUpdatePayload is the data of an update_campaign operation. Every
// field is optional but at least one must be present.
type CampaignUpdatePayload struct {
	Name           string   `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Channels       []string `json:"channels,omitempty" validate:"omitempty,min=1,dive,channel"`
	Description    string   `json:"description,omitempty" validate:"max=1000"`
	Goal           string   `json:"goal,omitempty" validate:"max=500"`
	TargetAudience string   `json:"targetAudience,omitempty" validate:"max=500"`
	Status         string   `json:"status,omitempty" validate:"omitempty,campaign_status"`
	StartDate      string   `json:"startDate,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
}

// ContentPayload is the data of a create_content operation.
type ContentPayload struct {
	Type        string   `json:"type" validate:"required,content_type"`
	Channel     string   `json:"channel" validate:"required,channel"`
	Body        string   `json:"body" validate:"required,nonblank"`
	Title       string   `json:"title,omitempty" validate:"max=200"`
	MediaURLs   []string `json:"mediaUrls,omitempty" validate:"omitempty,dive,url"`
	ScheduledAt string   `json:"scheduledAt,omitempty"`
	Status      string   `json:"status,omitempty" validate:"omitempty,content_status"`
}

// ContentUpdatePayload is the data of an update_content operation.
type ContentUpdatePayload struct {
	Type        string   `json:"type,omitempty" validate:"omitempty,content_type"`
	Channel     string   `json:"channel,omitempty" validate:"omitempty,channel"`
	Body        string   `json:"body,omitempty" validate:"omitempty,nonblank"`
	Title       string   `json:"title,omitempty" validate:"max=200"`
	MediaURLs   []string `json:"mediaUrls,omitempty" validate:"omitempty,dive,url"`
	ScheduledAt string   `json:"scheduledAt,omitempty"`
	Status      string   `json:"status,omitempty" validate:"omitempty,content_status"`
}

// OperationError describes why an operation cannot be applied.
type OperationError struct {
	Type   OperationType
	Field  string
	Reason string
}

func (e *OperationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s operation: %s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s operation: %s", e.Type, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	oneOf := func(values []string) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return slices.Contains(values, fl.Field().String())
		}
	}
	must("channel", oneOf(Channels))
	must("campaign_status", oneOf(CampaignStatuses))
	must("content_type", oneOf(ContentTypes))
	must("content_status", oneOf(ContentStatuses))
	must("brand_tone", oneOf(BrandTones))
	must("slug", func(fl validator.FieldLevel) bool { return slugPattern.MatchString(fl.Field().String()) })
	must("hexcolor6", func(fl validator.FieldLevel) bool { return colorPattern.MatchString(fl.Field().String()) })
	must("nonblank", func(fl validator.FieldLevel) bool { return strings.TrimSpace(fl.Field().String()) != "" })
	return v
}

// Validate checks the operation's type, target and type-specific payload.
// Brand and organization scoping is left to the caller, which may backfill
// them from the execution context.
func (o Operation) Validate() error {
	if !o.Type.Valid() {
		return &OperationError{Type: o.Type, Reason: "unknown operation type"}
	}
	if o.Type.IsUpdate() {
		if o.TargetID == "" {
			return &OperationError{Type: o.Type, Field: "targetId", Reason: "required for update operations"}
		}
		if len(o.Data) == 0 {
			return &OperationError{Type: o.Type, Field: "data", Reason: "no fields to update"}
		}
	}

	var payload any
	switch o.Type {
	case OpCreateBrand:
		payload = &BrandPayload{}
	case OpCreateCampaign:
		payload = &CampaignPayload{}
	case OpUpdateCampaign:
		payload = &CampaignUpdatePayload{}
	case OpCreateContent:
		payload = &ContentPayload{}
	case OpUpdateContent:
		payload = &ContentUpdatePayload{}
	}

	raw, err := json.Marshal(o.Data)
	if err != nil {
		return &OperationError{Type: o.Type, Field: "data", Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return &OperationError{Type: o.Type, Field: "data", Reason: err.Error()}
	}
	if err := validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &OperationError{Type: o.Type, Field: dataPath(fe.Namespace()), Reason: "failed " + fe.Tag() + " rule"}
		}
		return &OperationError{Type: o.Type, Field: "data", Reason: err.Error()}
	}
	return nil
}

// dataPath rewrites "CampaignPayload.channels[0]" as "data.channels[0]".
func dataPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return "data." + rest
	}
	return "data." + namespace
}
