package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

// ApprovalDecision says whether a reply needs a human and why.
type ApprovalDecision struct {
	Required bool   `json:"required"`
	Reason   string `json:"reason"`
}

// ApprovalGate applies the operator's approval policy to a scored reply.
type ApprovalGate struct {
	policy policy.Source
	logger *zap.Logger
}

// NewApprovalGate creates a gate reading thresholds and settings from source.
func NewApprovalGate(source policy.Source, logger *zap.Logger) *ApprovalGate {
	return &ApprovalGate{
		policy: source,
		logger: logger.Named("approval-gate"),
	}
}

// ShouldRequireApproval evaluates the rules in order and returns the first
// match. When the policy cannot be loaded the decision is Required and the
// load error is returned alongside it.
func (g *ApprovalGate) ShouldRequireApproval(ctx context.Context, confidence float64, riskFlags []models.RiskFlag, isFirstContact bool) (ApprovalDecision, error) {
	cfg, err := g.policy.Load(ctx)
	if err != nil {
		g.logger.Error("Approval policy unavailable, requiring approval", zap.Error(err))
		return ApprovalDecision{
			Required: true,
			Reason:   fmt.Sprintf("Approval policy unavailable: %v", err),
		}, err
	}

	thresholds := cfg.Policies.ConfidenceThresholds
	settings := cfg.Policies.ApprovalSettings

	if isFirstContact && settings.RequireApprovalFirstContact {
		return ApprovalDecision{Required: true, Reason: "First contact with guest requires approval"}, nil
	}

	if confidence < thresholds.ApprovalRequired {
		return ApprovalDecision{Required: true, Reason: fmt.Sprintf("Low confidence score: %.2f", confidence)}, nil
	}

	for _, f := range riskFlags {
		if f.IsHighRisk() {
			return ApprovalDecision{
				Required: true,
				Reason:   "High-risk flags detected: " + strings.Join(models.RiskFlagStrings(riskFlags), ", "),
			}, nil
		}
	}

	if confidence >= thresholds.AutoReply && !settings.DraftModeDefault {
		return ApprovalDecision{Required: false, Reason: "High confidence and auto-send enabled"}, nil
	}

	return ApprovalDecision{Required: true, Reason: "Draft mode enabled - all responses require approval"}, nil
}
