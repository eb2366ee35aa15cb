package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/services"
)

// DefaultReviewer is recorded when a resolution names no reviewer.
const DefaultReviewer = "api"

// defaultStaleAge is used by GET /api/approvals/stale without older_than.
const defaultStaleAge = 24 * time.Hour

// ResolveApprovalRequest is the optional body of POST /api/approvals/{id}/{action}.
type ResolveApprovalRequest struct {
	Action   string `json:"action,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Reviewer string `json:"reviewer,omitempty"`
}

// ApprovalListResponse wraps a list of approvals.
type ApprovalListResponse struct {
	Success bool               `json:"success"`
	Data    []*models.Approval `json:"data"`
	Count   int                `json:"count"`
}

// ResolveApprovalResponse is returned after a successful resolution.
type ResolveApprovalResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	ApprovalID string           `json:"approval_id"`
	Approval   *models.Approval `json:"approval"`
}

// ApprovalsHandler exposes the review queue.
type ApprovalsHandler struct {
	approvals services.ApprovalWorkflow
	logger    *zap.Logger
}

// NewApprovalsHandler creates a new approvals handler.
func NewApprovalsHandler(approvals services.ApprovalWorkflow, logger *zap.Logger) *ApprovalsHandler {
	return &ApprovalsHandler{approvals: approvals, logger: logger}
}

// RegisterRoutes registers the approval routes. wrap is applied to every route.
func (h *ApprovalsHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/approvals", wrap(h.List))
	mux.HandleFunc("GET /api/approvals/stale", wrap(h.ListStale))
	mux.HandleFunc("GET /api/approvals/{id}", wrap(h.Get))
	mux.HandleFunc("POST /api/approvals/{id}/{action}", wrap(h.Resolve))
}

// List handles GET /api/approvals and returns pending approvals.
func (h *ApprovalsHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, err := h.approvals.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list approvals", err)
		return
	}
	h.writeList(w, pending)
}

// ListStale handles GET /api/approvals/stale?older_than=24h.
func (h *ApprovalsHandler) ListStale(w http.ResponseWriter, r *http.Request) {
	olderThan := defaultStaleAge
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_older_than", "older_than must be a positive duration such as 24h"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		olderThan = d
	}

	stale, err := h.approvals.ListStale(r.Context(), olderThan)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list stale approvals", err)
		return
	}
	h.writeList(w, stale)
}

func (h *ApprovalsHandler) writeList(w http.ResponseWriter, list []*models.Approval) {
	if list == nil {
		list = []*models.Approval{}
	}
	resp := ApprovalListResponse{Success: true, Data: list, Count: len(list)}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/approvals/{id}.
func (h *ApprovalsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseApprovalID(w, r, h.logger)
	if !ok {
		return
	}

	approval, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get approval", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: approval}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Resolve handles POST /api/approvals/{id}/{action} where action is approve
// or reject. The body is optional.
func (h *ApprovalsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseApprovalID(w, r, h.logger)
	if !ok {
		return
	}
	action := r.PathValue("action")

	var req ResolveApprovalRequest
	if r.Body != nil {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	var details []FieldError
	if action != models.ApprovalActionApprove && action != models.ApprovalActionReject {
		details = append(details, FieldError{Field: "action", Message: "Action must be approve or reject"})
	} else if req.Action != "" && req.Action != action {
		details = append(details, FieldError{Field: "action", Message: "Body action does not match path"})
	}
	if len(details) > 0 {
		writeValidationError(w, h.logger, details)
		return
	}

	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer = strings.TrimSpace(r.Header.Get("X-Reviewer"))
	}
	if reviewer == "" {
		reviewer = DefaultReviewer
	}

	approval, err := h.approvals.Resolve(r.Context(), id, action, reviewer, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to resolve approval", err)
		return
	}

	h.logger.Info("Approval resolved",
		zap.String("approval_id", id.String()),
		zap.String("action", action),
		zap.String("reviewer", reviewer))

	resp := ResolveApprovalResponse{
		Success:    true,
		Message:    "Approval " + string(approval.Status) + " successfully",
		ApprovalID: id.String(),
		Approval:   approval,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
