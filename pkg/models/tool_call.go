package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-concierge/pkg/jsonutil"
)

// ToolName identifies a tool the completion provider may call.
type ToolName string

const (
	ToolGetBookingContext  ToolName = "get_booking_context"
	ToolGetPropertyFAQ     ToolName = "get_property_faq"
	ToolVerifyIdentity     ToolName = "verify_identity"
	ToolCreateDraftReply   ToolName = "create_draft_reply"
	ToolEnqueueForApproval ToolName = "enqueue_for_approval"
	ToolSendEmail          ToolName = "send_email"
)

// ToolNames lists every tool in catalog order.
var ToolNames = []ToolName{
	ToolGetBookingContext,
	ToolGetPropertyFAQ,
	ToolVerifyIdentity,
	ToolCreateDraftReply,
	ToolEnqueueForApproval,
	ToolSendEmail,
}

// IsValid reports whether n is a known tool.
func (n ToolName) IsValid() bool {
	for _, known := range ToolNames {
		if n == known {
			return true
		}
	}
	return false
}

// FAQTopics is the closed set of FAQ topics the lookup tool accepts.
var FAQTopics = []string{
	"wifi", "checkin", "checkout", "parking", "rubbish", "heating", "tv", "directions",
	"amenities", "emergency", "pets", "smoking", "noise", "cleaning", "laundry",
}

// IsFAQTopic reports whether topic is in FAQTopics.
func IsFAQTopic(topic string) bool {
	for _, t := range FAQTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// ToolArguments is implemented by the typed argument record of every tool.
type ToolArguments interface {
	Tool() ToolName
	Validate() error
}

// BookingLookupArgs are the arguments of get_booking_context.
type BookingLookupArgs struct {
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ArrivalDate string `json:"arrival_date,omitempty"`
}

func (BookingLookupArgs) Tool() ToolName { return ToolGetBookingContext }

func (a BookingLookupArgs) Validate() error {
	if a.ArrivalDate != "" {
		if _, err := time.Parse(time.DateOnly, a.ArrivalDate); err != nil {
			return fmt.Errorf("arrival_date must be YYYY-MM-DD")
		}
	}
	return nil
}

// Query converts the arguments to a booking lookup.
func (a BookingLookupArgs) Query() BookingQuery {
	q := BookingQuery{
		Email: strings.ToLower(strings.TrimSpace(a.Email)),
		Name:  strings.TrimSpace(a.Name),
		Phone: strings.TrimSpace(a.Phone),
	}
	if d, err := time.Parse(time.DateOnly, a.ArrivalDate); err == nil {
		q.ArrivalDate = &d
	}
	return q
}

// FAQLookupArgs are the arguments of get_property_faq.
type FAQLookupArgs struct {
	PropertyID string `json:"property_id,omitempty"`
	Topic      string `json:"topic"`
}

func (FAQLookupArgs) Tool() ToolName { return ToolGetPropertyFAQ }

func (a FAQLookupArgs) Validate() error {
	if a.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if !IsFAQTopic(a.Topic) {
		return fmt.Errorf("unknown topic %q", a.Topic)
	}
	return nil
}

// IdentityAnswers are the facts a guest supplied to prove who they are.
type IdentityAnswers struct {
	GuestName    string `json:"guest_name,omitempty"`
	GuestEmail   string `json:"guest_email,omitempty"`
	ArrivalDate  string `json:"arrival_date,omitempty"`
	PropertyName string `json:"property_name,omitempty"`
}

// IsEmpty reports whether no answer was supplied.
func (a IdentityAnswers) IsEmpty() bool {
	return a.GuestName == "" && a.GuestEmail == "" && a.ArrivalDate == "" && a.PropertyName == ""
}

// VerifyIdentityArgs are the arguments of verify_identity.
type VerifyIdentityArgs struct {
	BookingID       string          `json:"booking_id"`
	ProvidedAnswers IdentityAnswers `json:"provided_answers"`
}

func (VerifyIdentityArgs) Tool() ToolName { return ToolVerifyIdentity }

// UnmarshalJSON accepts a numeric booking_id.
func (a *VerifyIdentityArgs) UnmarshalJSON(data []byte) error {
	type plain VerifyIdentityArgs
	aux := struct {
		BookingID jsonutil.FlexibleString `json:"booking_id"`
		*plain
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.BookingID = aux.BookingID.String()
	return nil
}

func (a VerifyIdentityArgs) Validate() error {
	if a.BookingID == "" {
		return fmt.Errorf("booking_id is required")
	}
	return nil
}

// DraftReplyArgs are the arguments of create_draft_reply.
type DraftReplyArgs struct {
	Text      string `json:"text"`
	ThreadID  string `json:"thread_id,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	ToAddress string `json:"to_address,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

func (DraftReplyArgs) Tool() ToolName { return ToolCreateDraftReply }

// UnmarshalJSON accepts a numeric booking_id.
func (a *DraftReplyArgs) UnmarshalJSON(data []byte) error {
	type plain DraftReplyArgs
	aux := struct {
		BookingID jsonutil.FlexibleString `json:"booking_id,omitempty"`
		*plain
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.BookingID = aux.BookingID.String()
	return nil
}

func (a DraftReplyArgs) Validate() error {
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// EnqueueApprovalArgs are the arguments of enqueue_for_approval.
type EnqueueApprovalArgs struct {
	Type            ApprovalType   `json:"type"`
	Payload         map[string]any `json:"payload"`
	Reason          string         `json:"reason"`
	RiskFlags       []RiskFlag     `json:"risk_flags,omitempty"`
	ConfidenceScore *float64       `json:"confidence_score,omitempty"`
}

func (EnqueueApprovalArgs) Tool() ToolName { return ToolEnqueueForApproval }

func (a EnqueueApprovalArgs) Validate() error {
	if !a.Type.IsValid() {
		return fmt.Errorf("type must be one of reply, verification, policy, escalation")
	}
	if a.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if strings.TrimSpace(a.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	if a.ConfidenceScore != nil && (*a.ConfidenceScore < 0 || *a.ConfidenceScore > 1) {
		return fmt.Errorf("confidence_score must be between 0 and 1")
	}
	return nil
}

// SendEmailArgs are the arguments of send_email.
type SendEmailArgs struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

func (SendEmailArgs) Tool() ToolName { return ToolSendEmail }

func (a SendEmailArgs) Validate() error {
	if a.To == "" || a.Subject == "" || a.HTMLBody == "" {
		return fmt.Errorf("to, subject and html_body are required")
	}
	return nil
}

var (
	_ ToolArguments = BookingLookupArgs{}
	_ ToolArguments = FAQLookupArgs{}
	_ ToolArguments = VerifyIdentityArgs{}
	_ ToolArguments = DraftReplyArgs{}
	_ ToolArguments = EnqueueApprovalArgs{}
	_ ToolArguments = SendEmailArgs{}
)

// DecodeToolArguments parses the JSON argument blob for the named tool into
// its typed record and validates it.
func DecodeToolArguments(name ToolName, raw string) (ToolArguments, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var args ToolArguments
	var err error
	switch name {
	case ToolGetBookingContext:
		args, err = decodeArgs[BookingLookupArgs](raw)
	case ToolGetPropertyFAQ:
		args, err = decodeArgs[FAQLookupArgs](raw)
	case ToolVerifyIdentity:
		args, err = decodeArgs[VerifyIdentityArgs](raw)
	case ToolCreateDraftReply:
		args, err = decodeArgs[DraftReplyArgs](raw)
	case ToolEnqueueForApproval:
		var a EnqueueApprovalArgs
		a, err = decodeArgs[EnqueueApprovalArgs](raw)
		a.RiskFlags = FilterRiskFlags(a.RiskFlags)
		args = a
	case ToolSendEmail:
		args, err = decodeArgs[SendEmailArgs](raw)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return args, nil
}

func decodeArgs[T any](raw string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(raw), &v)
	return v, err
}

// ToolCall is one tool invocation requested by the completion provider.
// Arguments is nil when the raw arguments failed to decode.
type ToolCall struct {
	ID           string        `json:"id"`
	Name         ToolName      `json:"name"`
	Arguments    ToolArguments `json:"-"`
	RawArguments string        `json:"arguments"`
	Result       any           `json:"result,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// CountToolOutcomes returns the number of successful and failed calls.
func CountToolOutcomes(calls []ToolCall) (succeeded, failed int) {
	for _, c := range calls {
		if c.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
