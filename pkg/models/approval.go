package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalType identifies what a reviewer is signing off on.
type ApprovalType string

const (
	ApprovalTypeReply        ApprovalType = "reply"
	ApprovalTypeVerification ApprovalType = "verification"
	ApprovalTypePolicy       ApprovalType = "policy"
	ApprovalTypeEscalation   ApprovalType = "escalation"
)

// IsValid reports whether t is a known approval type.
func (t ApprovalType) IsValid() bool {
	switch t {
	case ApprovalTypeReply, ApprovalTypeVerification, ApprovalTypePolicy, ApprovalTypeEscalation:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the review state. Pending moves exactly once to a
// terminal status.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// IsTerminal reports whether s can no longer change.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Approval action names accepted by the review API.
const (
	ApprovalActionApprove = "approve"
	ApprovalActionReject  = "reject"
)

// Approval payload keys.
const (
	PayloadDraftReply       = "draft_reply"
	PayloadDetectedTopics   = "detected_topics"
	PayloadBookingContext   = "booking_context"
	PayloadEscalationReason = "escalation_reason"
	PayloadReasoning        = "reasoning"
	PayloadVerification     = "verification_details"
)

// Approval is a persisted unit of human review.
type Approval struct {
	ID              uuid.UUID      `json:"id"`
	Type            ApprovalType   `json:"type"`
	Payload         map[string]any `json:"payload"`
	Status          ApprovalStatus `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      *string        `json:"resolved_by,omitempty"`
	ResolutionNote  *string        `json:"resolution_note,omitempty"`
	Assignee        *string        `json:"assignee,omitempty"`
	CommunicationID *uuid.UUID     `json:"comm_id,omitempty"`
	RiskFlags       []RiskFlag     `json:"risk_flags"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
}

// ApprovalResolution describes a reviewer's decision.
type ApprovalResolution struct {
	Status     ApprovalStatus
	ResolvedBy string
	Note       string
	ResolvedAt time.Time
}
