package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Communication direction constants.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Communication channel constants.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Communication is a logged guest message. Outbound replies awaiting approval
// are stored with Draft=true.
type Communication struct {
	ID          uuid.UUID  `json:"comm_id"`
	BookingID   *string    `json:"booking_id,omitempty"`
	Direction   string     `json:"direction"`
	Channel     string     `json:"channel"`
	Subject     string     `json:"subject,omitempty"`
	Body        string     `json:"body"`
	Draft       bool       `json:"draft"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ThreadID    string     `json:"thread_id,omitempty"`
	FromAddress string     `json:"from_address,omitempty"`
	ToAddress   string     `json:"to_address,omitempty"`
	InReplyTo   string     `json:"in_reply_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsVerificationRecord reports whether a reviewer signed off on this message
// as confirming the guest's identity.
func (c *Communication) IsVerificationRecord() bool {
	return c.ApprovedBy != nil && strings.Contains(strings.ToLower(c.Body), "verified")
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re: your enquiry"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}
