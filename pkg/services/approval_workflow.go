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
	"github.com/ekaya-inc/ekaya-concierge/pkg/database"
	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

// DefaultDraftConfidence is recorded on drafts raised by the draft tool when
// no score is supplied.
const DefaultDraftConfidence = 0.75

// DraftRequest describes an outbound draft.
type DraftRequest struct {
	BookingID string
	Subject   string
	Body      string
	ToAddress string
	ThreadID  string
	InReplyTo string
}

// DraftApprovalOptions configures the approval raised with a draft.
type DraftApprovalOptions struct {
	Type            models.ApprovalType
	Reason          string
	Payload         map[string]any
	RiskFlags       []models.RiskFlag
	ConfidenceScore *float64
}

// ApprovalWorkflow is the review queue for drafts and escalations.
type ApprovalWorkflow interface {
	// CreateReplyApproval stores the reply as a draft communication and raises
	// a pending approval linked to it.
	CreateReplyApproval(ctx context.Context, msg *models.InboundMessage, resp *models.AIResponse, reqCtx *models.RequestContext) (*models.Approval, *models.Communication, error)

	CreateDraftWithApproval(ctx context.Context, draft DraftRequest, opts DraftApprovalOptions) (*models.Approval, *models.Communication, error)

	// Enqueue raises a pending approval with no linked communication.
	Enqueue(ctx context.Context, approval *models.Approval) (*models.Approval, error)

	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Approval, error)
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Approval, error)

	// Resolve applies a review action: approve or reject.
	Resolve(ctx context.Context, id uuid.UUID, action, reviewer, note string) (*models.Approval, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Approval, error)
	ListPending(ctx context.Context) ([]*models.Approval, error)

	// ListStale returns pending approvals older than olderThan.
	ListStale(ctx context.Context, olderThan time.Duration) ([]*models.Approval, error)
}

type approvalWorkflow struct {
	approvals      repositories.ApprovalRepository
	communications repositories.CommunicationRepository
	tx             database.Transactor
	metrics        *metrics.Metrics
	auditor        *audit.SecurityAuditor
	now            func() time.Time
	logger         *zap.Logger
}

var _ ApprovalWorkflow = (*approvalWorkflow)(nil)

// NewApprovalWorkflow creates the workflow. A nil tx runs each step directly.
func NewApprovalWorkflow(
	approvals repositories.ApprovalRepository,
	communications repositories.CommunicationRepository,
	tx database.Transactor,
	m *metrics.Metrics,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) ApprovalWorkflow {
	return &approvalWorkflow{
		approvals:      approvals,
		communications: communications,
		tx:             tx,
		metrics:        m,
		auditor:        auditor,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger.Named("approvals"),
	}
}

func (w *approvalWorkflow) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.tx == nil {
		return fn(ctx)
	}
	return w.tx.InTx(ctx, fn)
}

func (w *approvalWorkflow) CreateReplyApproval(ctx context.Context, msg *models.InboundMessage, resp *models.AIResponse, reqCtx *models.RequestContext) (*models.Approval, *models.Communication, error) {
	if msg == nil || resp == nil {
		return nil, nil, fmt.Errorf("message and response are required")
	}

	draft := DraftRequest{
		Subject:   models.ReplySubject(msg.Subject),
		Body:      resp.Message,
		ToAddress: msg.From,
		ThreadID:  msg.ThreadID,
		InReplyTo: msg.MessageID,
	}

	topics := []string{"general"}
	payload := map[string]any{
		models.PayloadDraftReply: resp.Message,
		models.PayloadReasoning:  resp.Reasoning,
	}
	if reqCtx != nil && reqCtx.Booking != nil {
		draft.BookingID = reqCtx.Booking.BookingID
		topics = []string{"booking_related"}
		summary := map[string]any{
			"booking_id": reqCtx.Booking.BookingID,
			"guest_name": reqCtx.Booking.GuestName,
		}
		if reqCtx.Property != nil {
			summary["property_name"] = reqCtx.Property.Name
		}
		payload[models.PayloadBookingContext] = summary
	}
	payload[models.PayloadDetectedTopics] = topics

	approvalType := models.ApprovalTypeReply
	if resp.Escalated {
		approvalType = models.ApprovalTypeEscalation
		payload[models.PayloadEscalationReason] = resp.Reasoning
	}

	confidence := resp.Confidence
	return w.CreateDraftWithApproval(ctx, draft, DraftApprovalOptions{
		Type:            approvalType,
		Reason:          resp.Reasoning,
		Payload:         payload,
		RiskFlags:       resp.RiskFlags,
		ConfidenceScore: &confidence,
	})
}

func (w *approvalWorkflow) CreateDraftWithApproval(ctx context.Context, draft DraftRequest, opts DraftApprovalOptions) (*models.Approval, *models.Communication, error) {
	if draft.Body == "" {
		return nil, nil, fmt.Errorf("draft body is required")
	}
	if opts.Type == "" {
		opts.Type = models.ApprovalTypeReply
	}
	if !opts.Type.IsValid() {
		return nil, nil, fmt.Errorf("invalid approval type: %s", opts.Type)
	}
	if opts.ConfidenceScore == nil {
		c := DefaultDraftConfidence
		opts.ConfidenceScore = &c
	}

	comm := &models.Communication{
		Direction: models.DirectionOutbound,
		Channel:   models.ChannelEmail,
		Subject:   draft.Subject,
		Body:      draft.Body,
		Draft:     true,
		ThreadID:  draft.ThreadID,
		ToAddress: draft.ToAddress,
		InReplyTo: draft.InReplyTo,
	}
	if draft.BookingID != "" {
		bookingID := draft.BookingID
		comm.BookingID = &bookingID
	}

	payload := opts.Payload
	if payload == nil {
		payload = map[string]any{models.PayloadDraftReply: draft.Body}
	}

	approval := &models.Approval{
		Type:            opts.Type,
		Payload:         payload,
		Status:          models.ApprovalStatusPending,
		Reason:          opts.Reason,
		RiskFlags:       models.FilterRiskFlags(opts.RiskFlags),
		ConfidenceScore: opts.ConfidenceScore,
		CreatedAt:       w.now(),
	}

	err := w.inTx(ctx, func(ctx context.Context) error {
		if err := w.communications.Create(ctx, comm); err != nil {
			return fmt.Errorf("failed to create draft communication: %w", err)
		}
		approval.CommunicationID = &comm.ID
		if err := w.approvals.Create(ctx, approval); err != nil {
			return fmt.Errorf("failed to create approval: %w", err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("Failed to create draft with approval",
			zap.String("type", string(opts.Type)),
			zap.String("thread_id", draft.ThreadID),
			zap.Error(err))
		return nil, nil, err
	}

	w.metrics.ApprovalCreated(string(approval.Type))
	w.logger.Info("Draft queued for approval",
		zap.String("approval_id", approval.ID.String()),
		zap.String("comm_id", comm.ID.String()),
		zap.String("type", string(approval.Type)),
		zap.Strings("risk_flags", models.RiskFlagStrings(approval.RiskFlags)))
	return approval, comm, nil
}

func (w *approvalWorkflow) Enqueue(ctx context.Context, approval *models.Approval) (*models.Approval, error) {
	if approval == nil || !approval.Type.IsValid() {
		return nil, fmt.Errorf("invalid approval type")
	}
	if approval.Payload == nil {
		approval.Payload = map[string]any{}
	}
	approval.Status = models.ApprovalStatusPending
	approval.RiskFlags = models.FilterRiskFlags(approval.RiskFlags)
	approval.ResolvedAt = nil
	approval.ResolvedBy = nil
	approval.CreatedAt = w.now()

	if err := w.approvals.Create(ctx, approval); err != nil {
		w.logger.Error("Failed to enqueue approval",
			zap.String("type", string(approval.Type)),
			zap.Error(err))
		return nil, err
	}

	w.metrics.ApprovalCreated(string(approval.Type))
	w.logger.Info("Approval enqueued",
		zap.String("approval_id", approval.ID.String()),
		zap.String("type", string(approval.Type)),
		zap.String("reason", approval.Reason))
	return approval, nil
}

func (w *approvalWorkflow) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Approval, error) {
	return w.resolve(ctx, id, models.ApprovalResolution{
		Status:     models.ApprovalStatusApproved,
		ResolvedBy: reviewer,
	})
}

func (w *approvalWorkflow) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Approval, error) {
	return w.resolve(ctx, id, models.ApprovalResolution{
		Status:     models.ApprovalStatusRejected,
		ResolvedBy: reviewer,
		Note:       reason,
	})
}

func (w *approvalWorkflow) Resolve(ctx context.Context, id uuid.UUID, action, reviewer, note string) (*models.Approval, error) {
	switch action {
	case models.ApprovalActionApprove:
		res := models.ApprovalResolution{Status: models.ApprovalStatusApproved, ResolvedBy: reviewer, Note: note}
		return w.resolve(ctx, id, res)
	case models.ApprovalActionReject:
		return w.Reject(ctx, id, reviewer, note)
	default:
		return nil, fmt.Errorf("invalid action %q: must be approve or reject", action)
	}
}

func (w *approvalWorkflow) resolve(ctx context.Context, id uuid.UUID, res models.ApprovalResolution) (*models.Approval, error) {
	if res.ResolvedBy == "" {
		return nil, fmt.Errorf("reviewer is required")
	}
	res.ResolvedAt = w.now()

	var resolved *models.Approval
	err := w.inTx(ctx, func(ctx context.Context) error {
		a, err := w.approvals.Resolve(ctx, id, res)
		if err != nil {
			return err
		}
		if a.Status == models.ApprovalStatusApproved && a.CommunicationID != nil {
			if err := w.communications.MarkApproved(ctx, *a.CommunicationID, res.ResolvedBy, res.ResolvedAt); err != nil {
				return fmt.Errorf("failed to mark communication approved: %w", err)
			}
		}
		resolved = a
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotPending) {
			w.logger.Warn("Approval already resolved",
				zap.String("approval_id", id.String()),
				zap.String("requested_status", string(res.Status)))
			return nil, apperrors.Wrap(apperrors.KindApprovalConflict, "approvals.resolve", err, "")
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			w.logger.Error("Failed to resolve approval",
				zap.String("approval_id", id.String()),
				zap.Error(err))
		}
		return nil, err
	}

	w.metrics.ApprovalResolved(string(resolved.Status))
	w.auditor.LogApprovalResolved(ctx, id.String(), string(resolved.Status), res.ResolvedBy)
	w.logger.Info("Approval resolved",
		zap.String("approval_id", id.String()),
		zap.String("status", string(resolved.Status)),
		zap.String("resolved_by", res.ResolvedBy))
	return resolved, nil
}

func (w *approvalWorkflow) Get(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	return w.approvals.Get(ctx, id)
}

func (w *approvalWorkflow) ListPending(ctx context.Context) ([]*models.Approval, error) {
	return w.approvals.ListPending(ctx)
}

func (w *approvalWorkflow) ListStale(ctx context.Context, olderThan time.Duration) ([]*models.Approval, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("olderThan must be positive")
	}
	return w.approvals.ListPendingBefore(ctx, w.now().Add(-olderThan))
}
