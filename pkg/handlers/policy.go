package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

// PolicyReloader is the part of policy.Provider the operator routes use.
type PolicyReloader interface {
	Load(ctx context.Context) (*policy.Config, error)
	Reload(ctx context.Context) (*policy.Config, error)
	LastLoaded() time.Time
}

var _ PolicyReloader = (*policy.Provider)(nil)

// PolicyStatus summarizes the policy snapshot being served.
type PolicyStatus struct {
	LoadedAt          time.Time `json:"loaded_at"`
	RedLines          int       `json:"red_lines"`
	EmergencyKeywords int       `json:"emergency_keywords"`
	FAQTopics         int       `json:"faq_topics"`
	DraftMode         bool      `json:"draft_mode"`
}

// PolicyHandler reports and reloads the policy files.
type PolicyHandler struct {
	policies PolicyReloader
	logger   *zap.Logger
}

func NewPolicyHandler(policies PolicyReloader, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{policies: policies, logger: logger}
}

// RegisterRoutes registers GET /api/policy and POST /api/policy/reload.
func (h *PolicyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/policy", h.Status)
	mux.HandleFunc("POST /api/policy/reload", h.Reload)
}

// Status handles GET /api/policy.
func (h *PolicyHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.policies.Load(r.Context())
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	h.writeStatus(w, cfg)
}

// Reload handles POST /api/policy/reload. A failed reload leaves the previous
// files in force and returns 422.
func (h *PolicyHandler) Reload(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.policies.Reload(r.Context())
	if err != nil {
		h.writeLoadError(w, err)
		return
	}
	h.logger.Info("Policy files reloaded by operator", zap.Time("loaded_at", h.policies.LastLoaded()))
	h.writeStatus(w, cfg)
}

func (h *PolicyHandler) writeStatus(w http.ResponseWriter, cfg *policy.Config) {
	status := PolicyStatus{
		LoadedAt:          h.policies.LastLoaded(),
		RedLines:          len(cfg.Policies.RedLines),
		EmergencyKeywords: len(cfg.Policies.Escalation.EmergencyKeywords),
		FAQTopics:         len(cfg.FAQs.Defaults),
		DraftMode:         cfg.Policies.ApprovalSettings.DraftModeDefault,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status}); err != nil {
		h.logger.Error("Failed to write policy status", zap.Error(err))
	}
}

func (h *PolicyHandler) writeLoadError(w http.ResponseWriter, err error) {
	h.logger.Warn("Policy files could not be loaded", zap.Error(err))
	if err := ErrorResponse(w, http.StatusUnprocessableEntity, "policy_invalid", apperrors.Reason(err)); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
