package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/logging"
	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

// TextQuery is an ad hoc question that is answered but not logged.
type TextQuery struct {
	Message    string               `json:"message"`
	GuestEmail string               `json:"guest_email,omitempty"`
	History    []models.HistoryTurn `json:"history,omitempty"`
}

// ConciergeService is the entry point for inbound guest messages.
type ConciergeService interface {
	// HandleInbound builds the guest's context, processes the message, logs
	// it, and raises an approval when one is required. An error means the
	// approval could not be persisted.
	HandleInbound(ctx context.Context, msg *models.InboundMessage) (*models.AIResponse, error)

	// Preview answers a text query without persisting anything.
	Preview(ctx context.Context, query TextQuery) (*models.AIResponse, error)
}

type conciergeService struct {
	bookingContexts repositories.BookingContextRepository
	communications  repositories.CommunicationRepository
	processor       RequestProcessor
	approvals       ApprovalWorkflow
	metrics         *metrics.Metrics
	now             func() time.Time
	logger          *zap.Logger
}

var _ ConciergeService = (*conciergeService)(nil)

// NewConciergeService wires the inbound-message flow.
func NewConciergeService(
	bookingContexts repositories.BookingContextRepository,
	communications repositories.CommunicationRepository,
	processor RequestProcessor,
	approvals ApprovalWorkflow,
	m *metrics.Metrics,
	logger *zap.Logger,
) ConciergeService {
	return &conciergeService{
		bookingContexts: bookingContexts,
		communications:  communications,
		processor:       processor,
		approvals:       approvals,
		metrics:         m,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.Named("concierge"),
	}
}

func (s *conciergeService) HandleInbound(ctx context.Context, msg *models.InboundMessage) (*models.AIResponse, error) {
	if msg == nil || strings.TrimSpace(msg.From) == "" || strings.TrimSpace(msg.Body) == "" {
		return nil, fmt.Errorf("message sender and body are required")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	ctx = llm.WithContext(ctx, map[string]string{
		"thread_id":  msg.ThreadID,
		"message_id": msg.MessageID,
	})

	s.logger.Debug("Inbound message",
		zap.String("thread_id", msg.ThreadID),
		zap.String("from", logging.MaskEmail(msg.From)),
		zap.String("body", logging.SanitizeMessage(msg.Body, logging.MaxBodyLogLength)))

	reqCtx := s.buildContext(ctx, msg)
	resp := s.processor.Process(ctx, msg.Body, reqCtx)

	s.logInbound(ctx, msg, reqCtx)

	if resp.RequiresApproval {
		approval, comm, err := s.approvals.CreateReplyApproval(ctx, msg, resp, reqCtx)
		if err != nil {
			s.logger.Error("Failed to queue reply for approval",
				zap.String("thread_id", msg.ThreadID),
				zap.Error(err))
			return nil, fmt.Errorf("failed to queue reply for approval: %w", err)
		}
		resp.ApprovalID = &approval.ID
		resp.CommunicationID = &comm.ID
	}

	outcome := outcomeOf(resp)
	s.metrics.MessageProcessed(outcome)
	s.logger.Info("Processed inbound message",
		zap.String("thread_id", msg.ThreadID),
		zap.String("outcome", outcome),
		zap.Float64("confidence", resp.Confidence),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Bool("first_contact", reqCtx.IsFirstContact()),
		zap.Bool("booking_found", reqCtx.Booking != nil))
	return resp, nil
}

func (s *conciergeService) Preview(ctx context.Context, query TextQuery) (*models.AIResponse, error) {
	if strings.TrimSpace(query.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}

	reqCtx := &models.RequestContext{History: query.History}
	if query.GuestEmail != "" {
		if bc := s.findBooking(ctx, query.GuestEmail); bc != nil {
			reqCtx.Booking = bc.Booking
			reqCtx.Property = bc.Property
		}
	}
	return s.processor.Process(ctx, query.Message, reqCtx), nil
}

// buildContext gathers what storage knows about the sender. Lookup failures
// are logged and leave the context partially filled.
func (s *conciergeService) buildContext(ctx context.Context, msg *models.InboundMessage) *models.RequestContext {
	reqCtx := &models.RequestContext{}

	if bc := s.findBooking(ctx, msg.From); bc != nil {
		reqCtx.Booking = bc.Booking
		reqCtx.Property = bc.Property
		for _, c := range bc.Communications {
			if c.IsVerificationRecord() {
				reqCtx.UserVerified = true
				break
			}
		}
	}

	if msg.ThreadID != "" {
		thread, err := s.communications.ListByThread(ctx, msg.ThreadID)
		if err != nil {
			s.logger.Warn("Could not load conversation history",
				zap.String("thread_id", msg.ThreadID),
				zap.Error(err))
		}
		for _, c := range thread {
			if c.Draft {
				continue
			}
			role := models.HistoryRoleAssistant
			if c.Direction == models.DirectionInbound {
				role = models.HistoryRoleUser
			}
			reqCtx.History = append(reqCtx.History, models.HistoryTurn{Role: role, Content: c.Body})
		}
	}
	return reqCtx
}

func (s *conciergeService) findBooking(ctx context.Context, email string) *models.BookingContext {
	contexts, err := s.bookingContexts.Find(ctx, models.BookingQuery{Email: strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		s.logger.Warn("Could not build booking context",
			zap.String("email", logging.MaskEmail(email)),
			zap.Error(err))
		return nil
	}
	if len(contexts) == 0 {
		return nil
	}
	return contexts[0]
}

func (s *conciergeService) logInbound(ctx context.Context, msg *models.InboundMessage, reqCtx *models.RequestContext) {
	receivedAt := msg.ReceivedAt
	comm := &models.Communication{
		Direction:   models.DirectionInbound,
		Channel:     models.ChannelEmail,
		Subject:     msg.Subject,
		Body:        msg.Body,
		SentAt:      &receivedAt,
		ThreadID:    msg.ThreadID,
		FromAddress: msg.From,
		ToAddress:   msg.To,
		InReplyTo:   msg.InReplyTo,
	}
	if reqCtx.Booking != nil {
		bookingID := reqCtx.Booking.BookingID
		comm.BookingID = &bookingID
	}
	if err := s.communications.Create(ctx, comm); err != nil {
		s.logger.Error("Failed to log inbound message",
			zap.String("thread_id", msg.ThreadID),
			zap.Error(err))
	}
}

func outcomeOf(resp *models.AIResponse) string {
	switch {
	case resp.Escalated:
		return metrics.OutcomeEscalated
	case resp.RequiresApproval && resp.Message == FallbackMessage:
		return metrics.OutcomeFallback
	case resp.RequiresApproval:
		return metrics.OutcomeApproval
	default:
		return metrics.OutcomeAutoReply
	}
}
