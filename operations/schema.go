package operations

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// StructuredAnswer is the object shape requested from the model when the
// caller asks for structured output. Callers may add keys; only the reserved
// field has meaning to extraction.
type StructuredAnswer struct {
	Summary          string              `json:"summary" jsonschema_description:"Short answer for the user"`
	EntityOperations []EmbeddedOperation `json:"entityOperations,omitempty" jsonschema_description:"Entities the platform should create or update"`
}

// EmbeddedOperation documents one entry of the reserved field.
type EmbeddedOperation struct {
	Type           string         `json:"type" jsonschema:"enum=create_brand,enum=create_campaign,enum=update_campaign,enum=create_content,enum=update_content"`
	BrandID        string         `json:"brandId,omitempty" jsonschema_description:"Defaults to the active brand"`
	OrganizationID string         `json:"organizationId,omitempty" jsonschema_description:"Required for create_brand when the caller has no organization"`
	TargetID       string         `json:"targetId,omitempty" jsonschema_description:"ID of the entity to update; required for update types"`
	CampaignID     string         `json:"campaignId,omitempty" jsonschema_description:"Campaign to link new content to"`
	Data           map[string]any `json:"data" jsonschema_description:"Type-specific fields, camelCase"`
}

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// OutputSchema returns the JSON schema of StructuredAnswer as a fresh map,
// suitable for a response-format request.
func OutputSchema() (map[string]any, error) {
	raw, err := OutputSchemaJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// OutputSchemaJSON returns the indented JSON encoding of the schema.
func OutputSchemaJSON() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			ExpandedStruct: true,
			DoNotReference: true,
		}
		schemaJSON, schemaErr = json.MarshalIndent(r.Reflect(&StructuredAnswer{}), "", "  ")
	})
	return schemaJSON, schemaErr
}
