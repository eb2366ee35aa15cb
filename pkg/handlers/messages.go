package handlers

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/services"
)

// ProcessMessageRequest is the body of POST /api/messages/process.
type ProcessMessageRequest struct {
	From       string     `json:"from"`
	To         string     `json:"to"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	HTML       string     `json:"html,omitempty"`
	ThreadID   string     `json:"thread_id,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	InReplyTo  string     `json:"in_reply_to,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// Validate returns one FieldError per invalid field.
func (r *ProcessMessageRequest) Validate() []FieldError {
	var errs []FieldError
	if _, err := mail.ParseAddress(r.From); err != nil {
		errs = append(errs, FieldError{Field: "from", Message: "Invalid email address"})
	}
	if _, err := mail.ParseAddress(r.To); err != nil {
		errs = append(errs, FieldError{Field: "to", Message: "Invalid email address"})
	}
	if strings.TrimSpace(r.Subject) == "" {
		errs = append(errs, FieldError{Field: "subject", Message: "Subject is required"})
	}
	if strings.TrimSpace(r.Body) == "" {
		errs = append(errs, FieldError{Field: "body", Message: "Body is required"})
	}
	return errs
}

// toInbound normalises the request. Missing ids and timestamps are filled in.
func (r *ProcessMessageRequest) toInbound(now time.Time) *models.InboundMessage {
	from := r.From
	if addr, err := mail.ParseAddress(r.From); err == nil {
		from = addr.Address
	}
	to := r.To
	if addr, err := mail.ParseAddress(r.To); err == nil {
		to = addr.Address
	}

	msg := &models.InboundMessage{
		From:      strings.ToLower(from),
		To:        strings.ToLower(to),
		Subject:   r.Subject,
		Body:      r.Body,
		ThreadID:  r.ThreadID,
		MessageID: r.MessageID,
		InReplyTo: r.InReplyTo,
	}
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("msg-%d", now.UnixMilli())
	}
	if msg.ThreadID == "" {
		msg.ThreadID = msg.MessageID
	}
	if r.ReceivedAt != nil {
		msg.ReceivedAt = r.ReceivedAt.UTC()
	} else {
		msg.ReceivedAt = now
	}
	return msg
}

// ReplyResponse is the reply block returned to the caller.
type ReplyResponse struct {
	Message          string            `json:"message"`
	Confidence       float64           `json:"confidence"`
	RequiresApproval bool              `json:"requires_approval"`
	RiskFlags        []models.RiskFlag `json:"risk_flags"`
	Reasoning        string            `json:"reasoning,omitempty"`
	Escalated        bool              `json:"escalated,omitempty"`
	ToolCalls        []string          `json:"tool_calls,omitempty"`
}

// ProcessMessageResponse is returned by POST /api/messages/process.
type ProcessMessageResponse struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Reply      ReplyResponse `json:"ai_response"`
	CommID     *uuid.UUID    `json:"comm_id,omitempty"`
	ApprovalID *uuid.UUID    `json:"approval_id,omitempty"`
}

func toReplyResponse(resp *models.AIResponse) ReplyResponse {
	out := ReplyResponse{
		Message:          resp.Message,
		Confidence:       resp.Confidence,
		RequiresApproval: resp.RequiresApproval,
		RiskFlags:        resp.RiskFlags,
		Reasoning:        resp.Reasoning,
		Escalated:        resp.Escalated,
	}
	if out.RiskFlags == nil {
		out.RiskFlags = []models.RiskFlag{}
	}
	for _, call := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, string(call.Name))
	}
	return out
}

// MessagesHandler accepts guest messages from inbound channels.
type MessagesHandler struct {
	concierge services.ConciergeService
	now       func() time.Time
	logger    *zap.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(concierge services.ConciergeService, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{
		concierge: concierge,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// RegisterRoutes registers the message routes. wrap is applied to every
// route, typically the database scope middleware.
func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /api/messages/process", wrap(h.Process))
	mux.HandleFunc("POST /api/messages/preview", wrap(h.Preview))
}

// Process handles POST /api/messages/process.
func (h *MessagesHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if details := req.Validate(); len(details) > 0 {
		writeValidationError(w, h.logger, details)
		return
	}

	resp, err := h.concierge.HandleInbound(r.Context(), req.toInbound(h.now()))
	if err != nil {
		h.logger.Error("Failed to process message", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "processing_failed", "Failed to process message"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	out := ProcessMessageResponse{
		Success:    true,
		Message:    "Message processed successfully",
		Reply:      toReplyResponse(resp),
		CommID:     resp.CommunicationID,
		ApprovalID: resp.ApprovalID,
	}
	if err := WriteJSON(w, http.StatusOK, out); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Preview handles POST /api/messages/preview. Nothing is persisted.
func (h *MessagesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var query services.TextQuery
	if err := decodeJSON(w, r, &query); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if strings.TrimSpace(query.Message) == "" {
		writeValidationError(w, h.logger, []FieldError{{Field: "message", Message: "Message is required"}})
		return
	}

	resp, err := h.concierge.Preview(r.Context(), query)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to preview reply", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toReplyResponse(resp)}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
