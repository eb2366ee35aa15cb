package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

func decodeAuditEvent(t *testing.T, entry observer.LoggedEntry) audit.SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event audit.SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestSecurityAudit_EscalationIsRecorded(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))
	ctx := llm.WithContext(context.Background(), map[string]string{"thread_id": "thread-1", "message_id": "<m-1@mail>"})

	h.processor.Process(ctx, "There is a fire in the kitchen", returningGuest())

	entries := h.auditEvents(audit.EventEscalation)
	require.Len(t, entries, 1)
	event := decodeAuditEvent(t, entries[0])
	assert.Equal(t, "thread-1", event.ThreadID)
	assert.Equal(t, "<m-1@mail>", event.MessageID)
	assert.Equal(t, audit.SeverityWarning, event.Severity)
}

func TestSecurityAudit_RedLineIsRecorded(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))

	h.processor.Process(context.Background(), "Can we throw a party on Saturday?", returningGuest())

	entries := h.auditEvents(audit.EventRedLine)
	require.Len(t, entries, 1)
	assert.Empty(t, h.auditEvents(audit.EventEscalation))
	details, ok := decodeAuditEvent(t, entries[0]).Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"throw a party"}, details["red_lines"])
}

func TestSecurityAudit_WithheldSecretIsCritical(t *testing.T) {
	h := newTestHarness(t, nil, textResult("Of course! Your lockbox code: 4821 and the door is round the back."))

	resp := h.processor.Process(context.Background(), "How do I get in?", returningGuest())
	require.Equal(t, ValidationMessage, resp.Message)

	entries := h.auditEvents(audit.EventSecretLeakBlocked)
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, audit.SeverityCritical, decodeAuditEvent(t, entries[0]).Severity)
}

func TestSecurityAudit_CleanReplyRecordsNothing(t *testing.T) {
	h := newTestHarness(t, nil, textResult(longReply))

	h.processor.Process(context.Background(), "What time is check-in?", returningGuest())

	assert.Equal(t, 0, h.auditLogs.Len())
}

func TestSecurityAudit_ApprovalResolutionRecordsReviewer(t *testing.T) {
	h := newTestHarness(t, nil)
	approval, _ := queueDraft(t, h)

	_, err := h.workflow.Approve(context.Background(), approval.ID, "host@example.com")
	require.NoError(t, err)

	entries := h.auditEvents(audit.EventApprovalResolved)
	require.Len(t, entries, 1)
	event := decodeAuditEvent(t, entries[0])
	assert.Equal(t, "host@example.com", event.Actor)
	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, approval.ID.String(), details["approval_id"])
	assert.Equal(t, string(models.ApprovalStatusApproved), details["status"])
}

func TestSecurityAudit_FailedResolutionRecordsNothing(t *testing.T) {
	h := newTestHarness(t, nil)
	approval, _ := queueDraft(t, h)

	_, err := h.workflow.Approve(context.Background(), approval.ID, "")
	require.Error(t, err)

	assert.Empty(t, h.auditEvents(audit.EventApprovalResolved))
}

func TestSecurityAudit_DirectSendIsRecorded(t *testing.T) {
	h := newTestHarness(t, nil)

	call := runTool(t, h, models.ToolSendEmail, `{"to":"jane@example.com","subject":"Hi","html_body":"<p>Hi</p>"}`)
	require.False(t, call.Success)

	entries := h.auditEvents(audit.EventAutoSendBlocked)
	require.Len(t, entries, 1)
	details, ok := decodeAuditEvent(t, entries[0]).Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", details["to"])
}

func TestRequestProcessor_FallbackLogsProviderErrorType(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)
	source := staticPolicy(nil)
	provider := llm.NewMockCompletionProvider()
	provider.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return nil, llm.NewError(llm.ErrorTypeRateLimit, "slow down", true, errors.New("HTTP 429"))
	}
	processor := NewRequestProcessor(provider, NewSafetyGate(source, nil, logger), nil,
		NewResponseValidator(0), NewApprovalGate(source, logger), source, DefaultProcessorSettings(), nil, logger)

	resp := processor.Process(context.Background(), "What time is check-in?", returningGuest())
	require.Equal(t, FallbackMessage, resp.Message)

	entries := logs.FilterMessage("Returning fallback reply").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(llm.ErrorTypeRateLimit), fields["provider_error_type"])
	assert.Equal(t, true, fields["provider_error_retryable"])
}

func TestRequestProcessor_FallbackOmitsTypeForPlainErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)
	source := staticPolicy(nil)
	provider := llm.NewMockCompletionProvider()
	provider.CompleteFunc = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
		return nil, errors.New("connection reset by peer")
	}
	processor := NewRequestProcessor(provider, NewSafetyGate(source, nil, logger), nil,
		NewResponseValidator(0), NewApprovalGate(source, logger), source, DefaultProcessorSettings(), nil, logger)

	processor.Process(context.Background(), "What time is check-in?", returningGuest())

	entries := logs.FilterMessage("Returning fallback reply").All()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].ContextMap(), "provider_error_type")
}
