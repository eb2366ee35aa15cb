package llm

import (
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// ToolDefinition defines a tool that can be called by the LLM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ParameterProperty defines a parameter property in JSON Schema format.
type ParameterProperty struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *ParameterProperty `json:"items,omitempty"`
}

func (p ParameterProperty) schema() map[string]any {
	s := map[string]any{
		"type":        p.Type,
		"description": p.Description,
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Items != nil {
		s["items"] = p.Items.schema()
	}
	return s
}

// NewToolDefinition creates a new tool definition with standard JSON Schema parameters.
func NewToolDefinition(name, description string, properties map[string]ParameterProperty, required []string) ToolDefinition {
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v.schema()
	}
	if required == nil {
		required = []string{}
	}

	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func riskFlagNames() []string {
	return []string{
		string(models.RiskFlagPolicyViolation),
		string(models.RiskFlagIdentityUnverified),
		string(models.RiskFlagSensitiveInfoRequested),
		string(models.RiskFlagNegativeSentiment),
		string(models.RiskFlagEmergencyKeywords),
		string(models.RiskFlagRefundRequest),
		string(models.RiskFlagLowConfidence),
	}
}

// ConciergeTools returns the tool catalog offered to the provider on the
// first completion of every guest exchange.
func ConciergeTools() []ToolDefinition {
	return []ToolDefinition{
		NewToolDefinition(
			string(models.ToolGetBookingContext),
			"Retrieve booking information and context for a guest using their email, name, phone, or arrival date",
			map[string]ParameterProperty{
				"email":        {Type: "string", Description: "Guest email address"},
				"name":         {Type: "string", Description: "Guest full name"},
				"phone":        {Type: "string", Description: "Guest phone number"},
				"arrival_date": {Type: "string", Description: "Expected arrival date in YYYY-MM-DD format"},
			},
			nil,
		),
		NewToolDefinition(
			string(models.ToolGetPropertyFAQ),
			"Get FAQ answer for a specific topic, with property-specific overrides if available",
			map[string]ParameterProperty{
				"property_id": {Type: "string", Description: "Property ID to get specific FAQ answers for"},
				"topic":       {Type: "string", Description: "FAQ topic to look up", Enum: models.FAQTopics},
			},
			[]string{"topic"},
		),
		NewToolDefinition(
			string(models.ToolVerifyIdentity),
			"Verify guest identity against booking record before sharing secure information",
			map[string]ParameterProperty{
				"booking_id":       {Type: "string", Description: "Booking ID to verify against"},
				"provided_answers": {Type: "object", Description: "Guest-provided answers for verification: guest_name, guest_email, arrival_date, property_name"},
			},
			[]string{"booking_id", "provided_answers"},
		),
		NewToolDefinition(
			string(models.ToolCreateDraftReply),
			"Create a draft reply for human approval before sending",
			map[string]ParameterProperty{
				"thread_id":  {Type: "string", Description: "Email thread ID for conversation continuity"},
				"text":       {Type: "string", Description: "Draft reply text"},
				"booking_id": {Type: "string", Description: "Related booking ID if applicable"},
				"to_address": {Type: "string", Description: "Recipient email address"},
				"subject":    {Type: "string", Description: "Email subject line"},
			},
			[]string{"text"},
		),
		NewToolDefinition(
			string(models.ToolEnqueueForApproval),
			"Add request to approval queue for human review when uncertain or policy violations detected",
			map[string]ParameterProperty{
				"type": {
					Type:        "string",
					Description: "Type of approval needed",
					Enum: []string{
						string(models.ApprovalTypeReply),
						string(models.ApprovalTypeVerification),
						string(models.ApprovalTypePolicy),
						string(models.ApprovalTypeEscalation),
					},
				},
				"payload":          {Type: "object", Description: "Approval request details"},
				"reason":           {Type: "string", Description: "Reason for requiring approval"},
				"risk_flags":       {Type: "array", Description: "Detected risk flags", Items: &ParameterProperty{Type: "string", Enum: riskFlagNames()}},
				"confidence_score": {Type: "number", Description: "Confidence in the draft (0-1)"},
			},
			[]string{"type", "payload", "reason"},
		),
		NewToolDefinition(
			string(models.ToolSendEmail),
			"Send email response (only when auto-send mode is enabled, otherwise use create_draft_reply)",
			map[string]ParameterProperty{
				"to":          {Type: "string", Description: "Recipient email address"},
				"subject":     {Type: "string", Description: "Email subject"},
				"html_body":   {Type: "string", Description: "Email body in HTML format"},
				"in_reply_to": {Type: "string", Description: "Message ID of email being replied to"},
				"thread_id":   {Type: "string", Description: "Email thread ID for conversation continuity"},
			},
			[]string{"to", "subject", "html_body"},
		),
	}
}
