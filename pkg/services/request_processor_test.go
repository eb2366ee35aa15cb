package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

// returningGuest has prior conversation, so the first-contact rule does not apply.
func returningGuest() *models.RequestContext {
	return &models.RequestContext{History: []models.HistoryTurn{
		{Role: models.HistoryRoleUser, Content: "Hi, we're arriving on Saturday."},
		{Role: models.HistoryRoleAssistant, Content: "Lovely, see you then."},
	}}
}

func TestRequestProcessor_EmergencyShortCircuits(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))

	resp := h.processor.Process(context.Background(), "I can smell GAS in the kitchen", returningGuest())

	assert.Equal(t, 0, h.provider.Calls())
	assert.Equal(t, EscalationMessage, resp.Message)
	assert.Equal(t, 1.0, resp.Confidence)
	assert.True(t, resp.Escalated)
	assert.True(t, resp.RequiresApproval)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, []models.RiskFlag{models.RiskFlagEmergencyKeywords}, resp.RiskFlags)
	assert.Equal(t, "High-risk request detected: Emergency keywords detected", resp.Reasoning)
}

func TestRequestProcessor_PlainReplyOnFirstContact(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))

	resp := h.processor.Process(context.Background(), "What time is check-in?", nil)

	assert.Equal(t, longReply, resp.Message)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.True(t, resp.RequiresApproval)
	assert.Equal(t, "First contact with guest requires approval", resp.Reasoning)
	assert.Empty(t, resp.ToolCalls)
	assert.Empty(t, resp.RiskFlags)

	require.Equal(t, 1, h.provider.Calls())
	req := h.provider.Request(0)
	assert.Len(t, req.Tools, len(models.ToolNames))
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice)
	assert.Equal(t, llm.DefaultTemperature, req.Temperature)
	assert.Equal(t, llm.DefaultMaxTokens, req.MaxTokens)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "You are the guest concierge."}, req.Messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "Use tools to look up bookings and FAQs."}, req.Messages[1])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "What time is check-in?"}, req.Messages[2])
}

func TestRequestProcessor_ToolRoundThenAutoReply(t *testing.T) {
	source := staticPolicy(func(cfg *policy.Config) {
		cfg.Policies.ApprovalSettings.DraftModeDefault = false
	})
	h := newTestHarness(t, source,
		toolResult(
			llmToolCall("call-1", models.ToolGetPropertyFAQ, `{"property_id":"prop-1","topic":"checkin"}`),
			llmToolCall("call-2", models.ToolGetPropertyFAQ, `{"property_id":"prop-1","topic":"parking"}`),
		),
		textResult(longReply),
	)

	resp := h.processor.Process(context.Background(), "What time is check-in and where do we park?", returningGuest())

	require.Equal(t, 2, h.provider.Calls())
	assert.Equal(t, longReply, resp.Message)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.False(t, resp.RequiresApproval)
	assert.Equal(t, "High confidence and auto-send enabled", resp.Reasoning)

	require.Len(t, resp.ToolCalls, 2)
	for _, call := range resp.ToolCalls {
		assert.True(t, call.Success, call.Error)
	}

	second := h.provider.Request(1)
	assert.Empty(t, second.Tools)
	assert.Empty(t, second.ToolChoice)

	msgs := second.Messages
	require.GreaterOrEqual(t, len(msgs), 4)
	tail := msgs[len(msgs)-4:]
	assert.Equal(t, llm.RoleAssistant, tail[0].Role)
	assert.Equal(t, "call-1", tail[0].ToolCalls[0].ID)
	assert.Equal(t, llm.RoleTool, tail[1].Role)
	assert.Equal(t, "call-1", tail[1].ToolCallID)
	assert.Contains(t, tail[1].Content, "Check-in is from 3pm.")
	assert.Equal(t, "call-2", tail[3].ToolCallID)
	assert.Contains(t, tail[3].Content, "Free street parking is available.")
}

func TestRequestProcessor_FailedToolIsReported(t *testing.T) {
	h := newTestHarness(t, nil,
		toolResult(llmToolCall("call-1", models.ToolGetBookingContext, `{"email":`)),
		textResult(longReply),
	)

	resp := h.processor.Process(context.Background(), "Can you find my booking?", returningGuest())

	require.Len(t, resp.ToolCalls, 1)
	assert.False(t, resp.ToolCalls[0].Success)
	// 0.8 minus the failed-tool penalty falls under the validation threshold.
	assert.Equal(t, ValidationMessage, resp.Message)
	assert.Equal(t, "Low confidence score: 0.60", resp.Reasoning)
	assert.Contains(t, resp.RiskFlags, models.RiskFlagLowConfidence)

	msgs := h.provider.Request(1).Messages
	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, `"success":false`)
	assert.Contains(t, toolMsg.Content, "invalid arguments")
}

func TestRequestProcessor_ProviderFailure(t *testing.T) {
	h := newTestHarness(t, nil)
	h.provider.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return nil, llm.NewError(llm.ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
	}

	resp := h.processor.Process(context.Background(), "What time is check-in?", returningGuest())

	assert.Equal(t, FallbackMessage, resp.Message)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.True(t, resp.RequiresApproval)
	assert.Equal(t, []models.RiskFlag{models.RiskFlagLowConfidence}, resp.RiskFlags)
	assert.NotEmpty(t, resp.Reasoning)
	assert.Empty(t, resp.ToolCalls)
}

func TestRequestProcessor_SecondCallFailureKeepsToolCalls(t *testing.T) {
	h := newTestHarness(t, nil)
	calls := 0
	h.provider.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		calls++
		if calls == 1 {
			return toolResult(llmToolCall("call-1", models.ToolGetPropertyFAQ, `{"topic":"wifi"}`)), nil
		}
		return nil, errors.New("connection reset by peer")
	}

	resp := h.processor.Process(context.Background(), "What's the wifi?", returningGuest())

	assert.Equal(t, FallbackMessage, resp.Message)
	require.Len(t, resp.ToolCalls, 1)
	assert.True(t, resp.ToolCalls[0].Success)
}

func TestRequestProcessor_ValidationFailure(t *testing.T) {
	h := newTestHarness(t, nil, textResult("Of course! Your lockbox code: 4821 and the door is round the back."))

	resp := h.processor.Process(context.Background(), "How do I get in?", returningGuest())

	assert.Equal(t, ValidationMessage, resp.Message)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.True(t, resp.RequiresApproval)
	assert.Contains(t, resp.RiskFlags, models.RiskFlagSensitiveInfoRequested)
	assert.Contains(t, resp.Reasoning, "lockbox code")
}

func TestRequestProcessor_RefundGoesToReview(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))

	resp := h.processor.Process(context.Background(), "I was charged twice and want a refund", returningGuest())

	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, ValidationMessage, resp.Message)
	assert.True(t, resp.RequiresApproval)
	assert.Contains(t, resp.RiskFlags, models.RiskFlagRefundRequest)
	assert.Equal(t, "Refund or discount request detected", resp.Reasoning)
}

func TestRequestProcessor_PolicyUnavailable(t *testing.T) {
	h := newTestHarness(t, &policy.StaticSource{Err: errors.New("policies.yaml missing")}, textResult(longReply))

	resp := h.processor.Process(context.Background(), "What time is check-in?", nil)

	assert.Equal(t, 0, h.provider.Calls())
	assert.Equal(t, FallbackMessage, resp.Message)
	assert.True(t, resp.RequiresApproval)
}

func TestRequestProcessor_ContextNotes(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))
	ctx := context.Background()

	booking, err := h.store.Bookings().Get(ctx, "bk-1")
	require.NoError(t, err)
	property, err := h.store.Properties().Get(ctx, "prop-1")
	require.NoError(t, err)
	reqCtx := returningGuest()
	reqCtx.Booking = booking
	reqCtx.Property = property

	h.processor.Process(ctx, "Where do we park?", reqCtx)

	msgs := h.provider.Request(0).Messages
	require.Len(t, msgs, 7)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{
		llm.RoleSystem, llm.RoleSystem,
		llm.RoleUser, llm.RoleAssistant,
		llm.RoleSystem, llm.RoleSystem,
		llm.RoleUser,
	}, roles)
	assert.Equal(t, "Hi, we're arriving on Saturday.", msgs[2].Content)
	assert.True(t, strings.HasPrefix(msgs[4].Content, "Booking context: "))
	assert.Contains(t, msgs[4].Content, "jane@example.com")
	assert.True(t, strings.HasPrefix(msgs[5].Content, "Property context: "))
	assert.Contains(t, msgs[5].Content, "Harbour Cottage")

	for _, m := range msgs {
		assert.NotContains(t, m.Content, "sea-breeze-42")
		assert.NotContains(t, m.Content, "Lockbox 4821")
	}
}
