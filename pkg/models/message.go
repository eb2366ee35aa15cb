package models

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessage is a raw guest message as received from a channel.
type InboundMessage struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ThreadID   string    `json:"thread_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// History turn roles.
const (
	HistoryRoleUser      = "user"
	HistoryRoleAssistant = "assistant"
)

// HistoryTurn is one prior message in the conversation.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestContext is everything known about the guest before processing.
type RequestContext struct {
	Booking      *Booking      `json:"booking,omitempty"`
	Property     *Property     `json:"property,omitempty"`
	History      []HistoryTurn `json:"history,omitempty"`
	UserVerified bool          `json:"user_verified"`
}

// IsFirstContact reports whether there is no prior conversation.
func (c *RequestContext) IsFirstContact() bool {
	return c == nil || len(c.History) == 0
}

// SafetyCheckResult is the outcome of pre-flight screening.
type SafetyCheckResult struct {
	Passed     bool      `json:"passed"`
	Violations []string  `json:"violations"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Confidence float64   `json:"confidence"`
}

// Intent is the keyword-derived purpose of a guest message.
type Intent string

const (
	IntentWifiRequest         Intent = "wifi_request"
	IntentCheckinCheckoutInfo Intent = "checkin_checkout_info"
	IntentDirectionsRequest   Intent = "directions_request"
	IntentAccessRequest       Intent = "access_request"
	IntentGeneralInquiry      Intent = "general_inquiry"
)

// Sentiment is a coarse three-way tone classification.
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// RequestEntities are values extracted from the message text.
type RequestEntities struct {
	Email string `json:"email,omitempty"`
	Date  string `json:"date,omitempty"`
}

// RequestAnalysis is the lightweight heuristic analysis of a guest message.
type RequestAnalysis struct {
	Intent                       Intent          `json:"intent"`
	Entities                     RequestEntities `json:"entities"`
	RequiresIdentityVerification bool            `json:"requires_identity_verification"`
	EmergencyDetected            bool            `json:"emergency_detected"`
	Sentiment                    Sentiment       `json:"sentiment"`
}

// AIResponse is the single outcome of processing one guest message.
type AIResponse struct {
	Message          string     `json:"message"`
	Confidence       float64    `json:"confidence"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	RiskFlags        []RiskFlag `json:"risk_flags"`
	RequiresApproval bool       `json:"requires_approval"`
	Reasoning        string     `json:"reasoning,omitempty"`
	Escalated        bool       `json:"escalated,omitempty"`
	ApprovalID       *uuid.UUID `json:"approval_id,omitempty"`
	CommunicationID  *uuid.UUID `json:"comm_id,omitempty"`
}
