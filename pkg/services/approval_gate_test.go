package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

func autoSendPolicy(cfg *policy.Config) {
	cfg.Policies.ApprovalSettings.DraftModeDefault = false
}

func TestApprovalGate_RuleOrder(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*policy.Config)
		confidence   float64
		flags        []models.RiskFlag
		firstContact bool
		required     bool
		reason       string
	}{
		{
			name:         "first contact wins over high confidence",
			confidence:   0.99,
			firstContact: true,
			required:     true,
			reason:       "First contact with guest requires approval",
		},
		{
			name:         "first contact wins over low confidence",
			confidence:   0.1,
			firstContact: true,
			required:     true,
			reason:       "First contact with guest requires approval",
		},
		{
			name:       "low confidence",
			confidence: 0.55,
			required:   true,
			reason:     "Low confidence score: 0.55",
		},
		{
			name:       "high risk flag",
			mutate:     autoSendPolicy,
			confidence: 0.95,
			flags:      []models.RiskFlag{models.RiskFlagNegativeSentiment, models.RiskFlagPolicyViolation},
			required:   true,
			reason:     "High-risk flags detected: negative_sentiment, policy_violation",
		},
		{
			name:       "auto send when confident",
			mutate:     autoSendPolicy,
			confidence: 0.85,
			flags:      []models.RiskFlag{models.RiskFlagNegativeSentiment},
			required:   false,
			reason:     "High confidence and auto-send enabled",
		},
		{
			name:       "draft mode default",
			confidence: 0.95,
			required:   true,
			reason:     "Draft mode enabled - all responses require approval",
		},
		{
			name:       "below auto threshold falls through to draft mode",
			mutate:     autoSendPolicy,
			confidence: 0.7,
			required:   true,
			reason:     "Draft mode enabled - all responses require approval",
		},
		{
			name: "first contact policy disabled",
			mutate: func(cfg *policy.Config) {
				autoSendPolicy(cfg)
				cfg.Policies.ApprovalSettings.RequireApprovalFirstContact = false
			},
			confidence:   0.9,
			firstContact: true,
			required:     false,
			reason:       "High confidence and auto-send enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewApprovalGate(staticPolicy(tt.mutate), zap.NewNop())
			decision, err := gate.ShouldRequireApproval(context.Background(), tt.confidence, tt.flags, tt.firstContact)
			require.NoError(t, err)
			assert.Equal(t, tt.required, decision.Required)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestApprovalGate_FailsClosed(t *testing.T) {
	gate := NewApprovalGate(&policy.StaticSource{Err: errors.New("policies.yaml unreadable")}, zap.NewNop())

	decision, err := gate.ShouldRequireApproval(context.Background(), 1.0, nil, false)
	require.Error(t, err)
	assert.True(t, decision.Required)
	assert.Contains(t, decision.Reason, "policies.yaml unreadable")
}
