package entity

import (
	"encoding/json"
	"fmt"
)

// OperationType tags what an Operation asks the platform to do.
type OperationType string

const (
	OpCreateBrand    OperationType = "create_brand"
	OpCreateCampaign OperationType = "create_campaign"
	OpUpdateCampaign OperationType = "update_campaign"
	OpCreateContent  OperationType = "create_content"
	OpUpdateContent  OperationType = "update_content"
)

// OperationTypes lists every supported operation type.
var OperationTypes = []OperationType{
	OpCreateBrand,
	OpCreateCampaign,
	OpUpdateCampaign,
	OpCreateContent,
	OpUpdateContent,
}

// Valid reports whether t is one of the supported operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreateBrand, OpCreateCampaign, OpUpdateCampaign, OpCreateContent, OpUpdateContent:
		return true
	}
	return false
}

// IsUpdate reports whether t modifies an existing entity and therefore needs
// a target id.
func (t OperationType) IsUpdate() bool {
	return t == OpUpdateCampaign || t == OpUpdateContent
}

// NeedsBrand reports whether operations of this type must name a brand.
// Brand creation is scoped to an organization instead.
func (t OperationType) NeedsBrand() bool {
	return t != OpCreateBrand
}

// Operation is a declarative instruction for the platform to create or
// update an entity. It is serialized in the platform's camelCase shape.
type Operation struct {
	Type           OperationType      `json:"type"`
	BrandID        string             `json:"brandId,omitempty"`
	OrganizationID string             `json:"organizationId,omitempty"`
	TargetID       string             `json:"targetId,omitempty"`
	CampaignID     string             `json:"campaignId,omitempty"`
	Data           map[string]any     `json:"data"`
	Metadata       *OperationMetadata `json:"metadata,omitempty"`
}

// OperationMetadata records provenance for an operation.
type OperationMetadata struct {
	AIGenerated       bool   `json:"aiGenerated"`
	SourceExecutionID string `json:"sourceExecutionId,omitempty"`
}

// operationWire accepts the older per-type id fields the platform also emits
// (campaignId/contentId as update targets, customerId for brand creation).
type operationWire struct {
	Type           string             `json:"type"`
	BrandID        string             `json:"brandId"`
	OrganizationID string             `json:"organizationId"`
	CustomerID     string             `json:"customerId"`
	TargetID       string             `json:"targetId"`
	CampaignID     string             `json:"campaignId"`
	ContentID      string             `json:"contentId"`
	Data           map[string]any     `json:"data"`
	Metadata       *OperationMetadata `json:"metadata"`
}

// DecodeOperation parses one operation object. Unknown types are an error;
// payload rules are checked separately by Validate.
func DecodeOperation(data []byte) (Operation, error) {
	var w operationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	t := OperationType(w.Type)
	if !t.Valid() {
		return Operation{}, fmt.Errorf("decode operation: unknown type %q", w.Type)
	}
	op := Operation{
		Type:           t,
		BrandID:        w.BrandID,
		OrganizationID: w.OrganizationID,
		TargetID:       w.TargetID,
		CampaignID:     w.CampaignID,
		Data:           w.Data,
		Metadata:       w.Metadata,
	}
	if op.OrganizationID == "" {
		op.OrganizationID = w.CustomerID
	}
	if op.TargetID == "" {
		switch t {
		case OpUpdateCampaign:
			op.TargetID = w.CampaignID
			op.CampaignID = ""
		case OpUpdateContent:
			op.TargetID = w.ContentID
		}
	}
	if op.Data == nil {
		op.Data = map[string]any{}
	}
	return op, nil
}

// Clone returns a copy whose Data map can be modified independently.
func (o Operation) Clone() Operation {
	c := o
	if o.Data != nil {
		c.Data = make(map[string]any, len(o.Data))
		for k, v := range o.Data {
			c.Data[k] = v
		}
	}
	if o.Metadata != nil {
		m := *o.Metadata
		c.Metadata = &m
	}
	return c
}
