package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
)

func newObservedAuditor() (*SecurityAuditor, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewSecurityAuditor(zap.New(core))
	a.now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }
	return a, logs
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestSecurityAuditor_Escalation(t *testing.T) {
	a, logs := newObservedAuditor()
	ctx := llm.WithContext(context.Background(), map[string]string{"thread_id": "t-1", "message_id": "m-1"})

	a.LogEscalation(ctx, []string{"Emergency keywords detected"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)

	event := decodeEvent(t, entry)
	assert.Equal(t, EventEscalation, event.EventType)
	assert.Equal(t, "t-1", event.ThreadID)
	assert.Equal(t, "m-1", event.MessageID)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), event.Timestamp)
}

func TestSecurityAuditor_ValidationFailureSeverity(t *testing.T) {
	tests := []struct {
		name     string
		leak     bool
		wantType SecurityEventType
		wantSev  string
		level    zapcore.Level
	}{
		{"secret leak", true, EventSecretLeakBlocked, SeverityCritical, zapcore.ErrorLevel},
		{"low confidence", false, EventValidationFailure, SeverityWarning, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, logs := newObservedAuditor()
			a.LogValidationFailure(context.Background(), tt.leak, []string{"sensitive_info_requested"}, "reason")

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level)
			event := decodeEvent(t, entry)
			assert.Equal(t, tt.wantType, event.EventType)
			assert.Equal(t, tt.wantSev, event.Severity)
		})
	}
}

func TestSecurityAuditor_ApprovalResolvedCarriesActor(t *testing.T) {
	a, logs := newObservedAuditor()
	a.LogApprovalResolved(context.Background(), "a-1", "approved", "ops@example.com")

	require.Equal(t, 1, logs.Len())
	event := decodeEvent(t, logs.All()[0])
	assert.Equal(t, EventApprovalResolved, event.EventType)
	assert.Equal(t, "ops@example.com", event.Actor)
	assert.Equal(t, SeverityInfo, event.Severity)
}

func TestSecurityAuditor_RedLinesSkipsEmpty(t *testing.T) {
	a, logs := newObservedAuditor()
	a.LogRedLines(context.Background(), nil)
	assert.Equal(t, 0, logs.Len())

	a.LogRedLines(context.Background(), []string{"offer a refund"})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, EventRedLine, decodeEvent(t, logs.All()[0]).EventType)
}

func TestSecurityAuditor_NilIsNoop(t *testing.T) {
	var a *SecurityAuditor
	assert.NotPanics(t, func() {
		a.LogEscalation(context.Background(), nil)
		a.LogAutoSendBlocked(context.Background(), "guest@example.com", "hi")
	})
}
