package model

import (
	"encoding/json"
	"time"
)

// Category names as they appear in submission data and downstream payloads.
const (
	CategoryCommon           = "Common"
	CategoryAdvancedProperty = "Advanced Property"
	CategoryLossRun          = "Loss Run"
	CategoryGeneralLiability = "General Liability"
	CategoryProperty         = "Property"
	CategoryAuto             = "Auto"
	CategoryWorkersComp      = "Workers Compensation"
)

// CommonCategory is the normalized form of the common data package.
type CommonCategory struct {
	Firmographics      Section `json:"Firmographics"`
	BrokerDetails      Section `json:"Broker Details"`
	ProductDetails     Section `json:"Product Details"`
	LimitsAndCoverages Section `json:"Limits and Coverages"`
}

// PropertyLocation is one normalized location record of the property package.
type PropertyLocation struct {
	StandardFacts   Section `json:"standard_facts"`
	Limits          Section `json:"limits"`
	BuildingDetails Section `json:"building_details"`
}

// PropertyCategory is the ordered list of property locations.
type PropertyCategory []PropertyLocation

// MarshalJSON encodes a nil category as [].
func (p PropertyCategory) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]PropertyLocation(p))
}

// AdvancedPropertyLocation is one normalized location of the advanced
// property package.
type AdvancedPropertyLocation struct {
	AdvancedFacts     Section `json:"advanced_facts"`
	RMSDetails        Section `json:"rms_details"`
	ATCDetails        Section `json:"atc_details"`
	ProtectionDetails Section `json:"protection_details"`
}

// AdvancedPropertyCategory is the ordered list of advanced property locations.
type AdvancedPropertyCategory []AdvancedPropertyLocation

// MarshalJSON encodes a nil category as [].
func (p AdvancedPropertyCategory) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]AdvancedPropertyLocation(p))
}

// GeneralLiabilityCategory is the normalized general liability package.
type GeneralLiabilityCategory struct {
	Facts   Section `json:"gl_facts"`
	Options Section `json:"gl_options"`
}

// AutoFacts holds the string-coerced auto facts.
type AutoFacts struct {
	Facts Section `json:"auto_facts"`
}

// AutoCategory is the normalized auto package.
type AutoCategory struct {
	Auto AutoFacts `json:"Auto"`
}

// SubmissionData collects the normalized output of every data package that
// applied to a submission. Categories that were not fetched are omitted.
type SubmissionData struct {
	Common           *CommonCategory           `json:"Common,omitempty"`
	AdvancedProperty *AdvancedPropertyCategory `json:"Advanced Property,omitempty"`
	LossRun          *Value                    `json:"Loss Run,omitempty"`
	GeneralLiability *GeneralLiabilityCategory `json:"General Liability,omitempty"`
	Property         *PropertyCategory         `json:"Property,omitempty"`
	Auto             *AutoCategory             `json:"Auto,omitempty"`
	WorkersComp      *Value                    `json:"Workers Compensation,omitempty"`
}

// Categories lists the categories present, in encoding order.
func (d *SubmissionData) Categories() []string {
	var out []string
	if d.Common != nil {
		out = append(out, CategoryCommon)
	}
	if d.AdvancedProperty != nil {
		out = append(out, CategoryAdvancedProperty)
	}
	if d.LossRun != nil {
		out = append(out, CategoryLossRun)
	}
	if d.GeneralLiability != nil {
		out = append(out, CategoryGeneralLiability)
	}
	if d.Property != nil {
		out = append(out, CategoryProperty)
	}
	if d.Auto != nil {
		out = append(out, CategoryAuto)
	}
	if d.WorkersComp != nil {
		out = append(out, CategoryWorkersComp)
	}
	return out
}

// Value converts the structured submission into a dynamic Value, the form
// it is persisted and merged in.
func (d *SubmissionData) Value() (Value, error) {
	return Encode(d)
}

// TransactionType distinguishes the first save of a case from later reruns.
type TransactionType string

const (
	TransactionInitial TransactionType = "Initial"
	TransactionUpdated TransactionType = "Updated"
)

// SubmissionDocument is a persisted snapshot of a case's submission data.
type SubmissionDocument struct {
	CaseID            string          `json:"case_id"`
	TxID              string          `json:"tx_id"`
	ArtifiID          string          `json:"artifi_id"`
	SubmissionData    Value           `json:"submission_data"`
	HistorySequenceID int             `json:"history_sequence_id"`
	TransactionType   TransactionType `json:"transaction_type"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AgentResponses maps an agent's display key to its reply, or to
// {"error": msg} when the call failed.
type AgentResponses map[string]Value

// AgentResponseDocument is a persisted snapshot of a case's agent replies.
type AgentResponseDocument struct {
	CaseID            string          `json:"case_id"`
	TxID              string          `json:"tx_id"`
	ArtifiID          string          `json:"artifi_id"`
	AgentResponse     AgentResponses  `json:"agent_response"`
	HistorySequenceID int             `json:"history_sequence_id"`
	TransactionType   TransactionType `json:"transaction_type"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ErrorResponse builds the {"error": msg} entry recorded for a failed agent.
func ErrorResponse(msg string) Value {
	obj := NewObject()
	obj.Set("error", String(msg))
	return FromObject(obj)
}
