package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

// ErrAutoSendDisabled is returned by send_email. Replies only leave through
// the approval queue.
var ErrAutoSendDisabled = errors.New("auto-send mode is disabled: all responses must go through the approval queue")

// ToolExecutor runs one tool call requested by the completion provider.
type ToolExecutor interface {
	// Execute returns call with Result, Success and Error filled in. Failures
	// are recorded on the call and never returned.
	Execute(ctx context.Context, call models.ToolCall) models.ToolCall
}

type toolExecutor struct {
	bookingContexts repositories.BookingContextRepository
	properties      repositories.PropertyRepository
	policy          policy.Source
	identity        *IdentityVerifier
	approvals       ApprovalWorkflow
	metrics         *metrics.Metrics
	auditor         *audit.SecurityAuditor
	logger          *zap.Logger
}

var _ ToolExecutor = (*toolExecutor)(nil)

// NewToolExecutor wires the tool handlers to their collaborators.
func NewToolExecutor(
	bookingContexts repositories.BookingContextRepository,
	properties repositories.PropertyRepository,
	source policy.Source,
	identity *IdentityVerifier,
	approvals ApprovalWorkflow,
	m *metrics.Metrics,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) ToolExecutor {
	return &toolExecutor{
		bookingContexts: bookingContexts,
		properties:      properties,
		policy:          source,
		identity:        identity,
		approvals:       approvals,
		metrics:         m,
		auditor:         auditor,
		logger:          logger.Named("tools"),
	}
}

func (e *toolExecutor) Execute(ctx context.Context, call models.ToolCall) models.ToolCall {
	start := time.Now()

	result, err := e.dispatch(ctx, &call)
	if err != nil {
		call.Result = nil
		call.Success = false
		call.Error = err.Error()
		e.logger.Warn("Tool call failed",
			zap.String("tool", string(call.Name)),
			zap.String("tool_call_id", call.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(apperrors.Wrap(apperrors.KindToolExecution, "tools.execute", err, "")))
	} else {
		call.Result = result
		call.Success = true
		call.Error = ""
		e.logger.Debug("Tool call succeeded",
			zap.String("tool", string(call.Name)),
			zap.String("tool_call_id", call.ID),
			zap.Duration("elapsed", time.Since(start)))
	}

	e.metrics.ToolCall(string(call.Name), call.Success)
	return call
}

// dispatch decodes the arguments when needed and runs the matching handler.
func (e *toolExecutor) dispatch(ctx context.Context, call *models.ToolCall) (any, error) {
	if call.Arguments == nil {
		args, err := models.DecodeToolArguments(call.Name, call.RawArguments)
		if err != nil {
			return nil, err
		}
		call.Arguments = args
	}

	switch args := call.Arguments.(type) {
	case models.BookingLookupArgs:
		return e.getBookingContext(ctx, args)
	case models.FAQLookupArgs:
		return e.getPropertyFAQ(ctx, args)
	case models.VerifyIdentityArgs:
		return e.identity.Verify(ctx, args.BookingID, args.ProvidedAnswers), nil
	case models.DraftReplyArgs:
		return e.createDraftReply(ctx, args)
	case models.EnqueueApprovalArgs:
		return e.enqueueForApproval(ctx, args)
	case models.SendEmailArgs:
		e.auditor.LogAutoSendBlocked(ctx, args.To, args.Subject)
		return nil, ErrAutoSendDisabled
	default:
		return nil, fmt.Errorf("unknown tool: %s", call.Name)
	}
}

type bookingSummary struct {
	BookingID              string                 `json:"booking_id"`
	GuestName              string                 `json:"guest_name"`
	PropertyName           string                 `json:"property_name,omitempty"`
	ArrivalDate            string                 `json:"arrival_date"`
	DepartureDate          string                 `json:"departure_date"`
	NumGuests              int                    `json:"num_guests"`
	Status                 string                 `json:"status"`
	PropertyPublicInfo     *models.PublicProperty `json:"property_public_info"`
	PreviousCommunications int                    `json:"previous_communications"`
}

type bookingLookupResult struct {
	Found    bool             `json:"found"`
	Message  string           `json:"message,omitempty"`
	Bookings []bookingSummary `json:"bookings,omitempty"`
}

// getBookingContext never returns secure property fields.
func (e *toolExecutor) getBookingContext(ctx context.Context, args models.BookingLookupArgs) (any, error) {
	contexts, err := e.bookingContexts.Find(ctx, args.Query())
	if err != nil {
		return nil, fmt.Errorf("booking lookup failed: %w", err)
	}
	if len(contexts) == 0 {
		return bookingLookupResult{Message: "No booking found matching the provided information"}, nil
	}

	result := bookingLookupResult{Found: true, Bookings: make([]bookingSummary, 0, len(contexts))}
	for _, bc := range contexts {
		b := bc.Booking
		summary := bookingSummary{
			BookingID:              b.BookingID,
			GuestName:              b.GuestName,
			ArrivalDate:            b.ArrivalDate.Format(time.DateOnly),
			DepartureDate:          b.DepartureDate.Format(time.DateOnly),
			NumGuests:              b.NumGuests,
			Status:                 b.Status,
			PropertyPublicInfo:     bc.Property.Public(),
			PreviousCommunications: len(bc.Communications),
		}
		if bc.Property != nil {
			summary.PropertyName = bc.Property.Name
		}
		result.Bookings = append(result.Bookings, summary)
	}
	return result, nil
}

type faqResult struct {
	Found            bool   `json:"found"`
	Topic            string `json:"topic,omitempty"`
	Answer           string `json:"answer,omitempty"`
	Source           string `json:"source,omitempty"`
	PropertySpecific bool   `json:"property_specific"`
	Message          string `json:"message,omitempty"`
}

// getPropertyFAQ prefers the property record's own override, then the policy
// file's per-property override, then the default answer.
func (e *toolExecutor) getPropertyFAQ(ctx context.Context, args models.FAQLookupArgs) (any, error) {
	if args.PropertyID != "" && e.properties != nil {
		property, err := e.properties.Get(ctx, args.PropertyID)
		if err != nil {
			e.logger.Warn("Failed to load property for FAQ lookup",
				zap.String("property_id", args.PropertyID),
				zap.Error(err))
		} else if property != nil {
			if answer := property.FAQOverrides[args.Topic]; answer != "" {
				return faqResult{
					Found:            true,
					Topic:            args.Topic,
					Answer:           answer,
					Source:           policy.FAQSourcePropertyOverride,
					PropertySpecific: true,
				}, nil
			}
		}
	}

	cfg, err := e.policy.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("faq lookup failed: %w", err)
	}
	answer, ok := cfg.PropertyFAQ(args.PropertyID, args.Topic)
	if !ok {
		return faqResult{Message: fmt.Sprintf("No FAQ found for topic '%s'", args.Topic)}, nil
	}
	return faqResult{
		Found:            true,
		Topic:            answer.Topic,
		Answer:           answer.Answer,
		Source:           answer.Source,
		PropertySpecific: answer.Source == policy.FAQSourcePropertyOverride,
	}, nil
}

type draftResult struct {
	DraftCreated bool      `json:"draft_created"`
	CommID       uuid.UUID `json:"comm_id"`
	ApprovalID   uuid.UUID `json:"approval_id"`
	Message      string    `json:"message"`
}

func (e *toolExecutor) createDraftReply(ctx context.Context, args models.DraftReplyArgs) (any, error) {
	approval, comm, err := e.approvals.CreateDraftWithApproval(ctx, DraftRequest{
		BookingID: args.BookingID,
		Subject:   args.Subject,
		Body:      args.Text,
		ToAddress: args.ToAddress,
		ThreadID:  args.ThreadID,
	}, DraftApprovalOptions{
		Type:   models.ApprovalTypeReply,
		Reason: "Draft reply created by assistant",
	})
	if err != nil {
		return nil, err
	}
	return draftResult{
		DraftCreated: true,
		CommID:       comm.ID,
		ApprovalID:   approval.ID,
		Message:      "Draft reply created and queued for approval",
	}, nil
}

type enqueueResult struct {
	Queued     bool      `json:"queued"`
	ApprovalID uuid.UUID `json:"approval_id"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
}

func (e *toolExecutor) enqueueForApproval(ctx context.Context, args models.EnqueueApprovalArgs) (any, error) {
	approval, err := e.approvals.Enqueue(ctx, &models.Approval{
		Type:            args.Type,
		Payload:         args.Payload,
		Reason:          args.Reason,
		RiskFlags:       args.RiskFlags,
		ConfidenceScore: args.ConfidenceScore,
	})
	if err != nil {
		return nil, err
	}
	return enqueueResult{
		Queued:     true,
		ApprovalID: approval.ID,
		Reason:     args.Reason,
		Message:    "Request queued for human approval",
	}, nil
}
