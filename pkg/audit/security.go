// Package audit logs security-relevant concierge events for SIEM consumption.
// Every event is written once under the "security_audit" logger with its
// JSON form in event_json.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventEscalation is logged when the safety screen rates a message high risk.
	EventEscalation SecurityEventType = "escalation"
	// EventRedLine is logged when a message matches a configured red line.
	EventRedLine SecurityEventType = "red_line_violation"
	// EventSecretLeakBlocked is logged when a generated reply looked like it
	// disclosed an access code or credential and was withheld.
	EventSecretLeakBlocked SecurityEventType = "secret_leak_blocked"
	// EventValidationFailure is logged for other replies withheld by validation.
	EventValidationFailure SecurityEventType = "validation_failure"
	// EventAutoSendBlocked is logged when the model tries to send email directly.
	EventAutoSendBlocked SecurityEventType = "auto_send_blocked"
	EventApprovalResolved SecurityEventType = "approval_resolved"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SecurityEvent is the JSON body of one audit record.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ThreadID  string            `json:"thread_id,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// SecurityAuditor writes security events. A nil *SecurityAuditor discards them.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates an auditor under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LogEscalation records a message escalated by the safety screen without a
// provider call.
func (a *SecurityAuditor) LogEscalation(ctx context.Context, violations []string) {
	a.emit(ctx, zapcore.WarnLevel, "Message escalated by safety screen", SecurityEvent{
		EventType: EventEscalation,
		Details:   map[string]any{"violations": violations},
		Severity:  SeverityWarning,
	})
}

// LogRedLines records the red lines a message matched.
func (a *SecurityAuditor) LogRedLines(ctx context.Context, lines []string) {
	if len(lines) == 0 {
		return
	}
	a.emit(ctx, zapcore.WarnLevel, "Red line matched", SecurityEvent{
		EventType: EventRedLine,
		Details:   map[string]any{"red_lines": lines},
		Severity:  SeverityWarning,
	})
}

// LogValidationFailure records a withheld reply. Suspected secret leaks are
// critical; other failures are warnings.
func (a *SecurityAuditor) LogValidationFailure(ctx context.Context, leak bool, riskFlags []string, reason string) {
	event := SecurityEvent{
		EventType: EventValidationFailure,
		Details:   map[string]any{"risk_flags": riskFlags, "reason": reason},
		Severity:  SeverityWarning,
	}
	level, msg := zapcore.WarnLevel, "Reply withheld by validation"
	if leak {
		event.EventType = EventSecretLeakBlocked
		event.Severity = SeverityCritical
		level, msg = zapcore.ErrorLevel, "Reply withheld: possible secret disclosure"
	}
	a.emit(ctx, level, msg, event)
}

// LogAutoSendBlocked records a direct send attempt refused by policy.
func (a *SecurityAuditor) LogAutoSendBlocked(ctx context.Context, to, subject string) {
	a.emit(ctx, zapcore.WarnLevel, "Direct send refused", SecurityEvent{
		EventType: EventAutoSendBlocked,
		Details:   map[string]any{"to": to, "subject": subject},
		Severity:  SeverityWarning,
	})
}

// LogApprovalResolved records a reviewer decision.
func (a *SecurityAuditor) LogApprovalResolved(ctx context.Context, approvalID, status, reviewer string) {
	a.emit(ctx, zapcore.InfoLevel, "Approval resolved", SecurityEvent{
		EventType: EventApprovalResolved,
		Actor:     reviewer,
		Details:   map[string]any{"approval_id": approvalID, "status": status},
		Severity:  SeverityInfo,
	})
}

func (a *SecurityAuditor) emit(ctx context.Context, level zapcore.Level, msg string, event SecurityEvent) {
	if a == nil {
		return
	}
	ids := llm.GetContext(ctx)
	event.Timestamp = a.now()
	event.ThreadID = ids["thread_id"]
	event.MessageID = ids["message_id"]

	// Marshalling these types cannot fail.
	eventJSON, _ := json.Marshal(event)

	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(
			zap.String("event_json", string(eventJSON)),
			zap.String("event_type", string(event.EventType)),
			zap.String("thread_id", event.ThreadID),
			zap.String("actor", event.Actor),
			zap.String("severity", event.Severity),
		)
	}
}
