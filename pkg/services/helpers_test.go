package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
	"github.com/ekaya-inc/ekaya-concierge/pkg/repositories"
)

func testPolicyConfig() *policy.Config {
	return &policy.Config{
		Policies: policy.Policies{
			RedLines: []string{"throw a party", "bring extra guests"},
			Escalation: policy.Escalation{
				EmergencyKeywords: []string{"gas", "fire", "flood", "locked out", "emergency"},
			},
			ConfidenceThresholds: policy.ConfidenceThresholds{
				AutoReply:           0.85,
				ApprovalRequired:    0.6,
				EscalateImmediately: 0.3,
			},
			ApprovalSettings: policy.ApprovalSettings{
				DraftModeDefault:            true,
				RequireApprovalFirstContact: true,
				ApprovalTimeoutHours:        24,
			},
		},
		FAQs: policy.FAQs{
			Defaults: map[string]string{
				"wifi":    "The network name and password are in the welcome book.",
				"checkin": "Check-in is from 3pm.",
				"parking": "Free street parking is available.",
			},
			PerPropertyOverrides: map[string]map[string]string{
				"prop-2": {"parking": "Use the driveway."},
			},
		},
		Prompts: policy.Prompts{
			System: "You are the guest concierge.",
			Tools:  "Use tools to look up bookings and FAQs.",
		},
	}
}

func staticPolicy(mutate func(*policy.Config)) *policy.StaticSource {
	cfg := testPolicyConfig()
	if mutate != nil {
		mutate(cfg)
	}
	return &policy.StaticSource{Config: cfg}
}

// seedConcierge loads one property and one booking for jane@example.com.
func seedConcierge(t *testing.T, store *repositories.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Properties().Upsert(ctx, &models.Property{
		PropertyID:               "prop-1",
		Name:                     "Harbour Cottage",
		CheckinTime:              "15:00",
		WifiPassword:             "sea-breeze-42",
		AccessInstructionsSecure: "Lockbox 4821",
		FAQOverrides:             map[string]string{"rubbish": "Bins go out on Tuesday."},
	}))
	require.NoError(t, store.Bookings().Create(ctx, &models.Booking{
		BookingID:     "bk-1",
		Channel:       models.BookingChannelDirect,
		GuestName:     "Jane Smith",
		GuestEmail:    "jane@example.com",
		PropertyID:    "prop-1",
		ArrivalDate:   time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		DepartureDate: time.Date(2026, 12, 27, 0, 0, 0, 0, time.UTC),
		NumGuests:     2,
	}))
}

type testHarness struct {
	store     *repositories.MemoryStore
	provider  *llm.MockCompletionProvider
	source    *policy.StaticSource
	workflow  ApprovalWorkflow
	tools     ToolExecutor
	processor RequestProcessor
	auditLogs *observer.ObservedLogs
}

// auditEvents returns the recorded security events of the given type.
func (h *testHarness) auditEvents(eventType audit.SecurityEventType) []observer.LoggedEntry {
	return h.auditLogs.FilterField(zap.String("event_type", string(eventType))).All()
}

func newTestHarness(t *testing.T, source *policy.StaticSource, responses ...*llm.CompletionResult) *testHarness {
	t.Helper()
	logger := zap.NewNop()
	store := repositories.NewMemoryStore()
	seedConcierge(t, store)

	if source == nil {
		source = staticPolicy(nil)
	}
	provider := llm.NewMockCompletionProvider(responses...)
	auditCore, auditLogs := observer.New(zapcore.InfoLevel)
	auditor := audit.NewSecurityAuditor(zap.New(auditCore))
	workflow := NewApprovalWorkflow(store.Approvals(), store.Communications(), store, nil, auditor, logger)
	bookingContexts := repositories.NewBookingContextRepository(store.Bookings(), store.Properties(), store.Communications(), logger)
	tools := NewToolExecutor(bookingContexts, store.Properties(), source,
		NewIdentityVerifier(store.Bookings(), store.Properties(), logger), workflow, nil, auditor, logger)
	processor := NewRequestProcessor(provider, NewSafetyGate(source, auditor, logger), tools,
		NewResponseValidator(0), NewApprovalGate(source, logger), source, DefaultProcessorSettings(), auditor, logger)

	return &testHarness{
		store:     store,
		provider:  provider,
		source:    source,
		workflow:  workflow,
		tools:     tools,
		processor: processor,
		auditLogs: auditLogs,
	}
}

// longReply is comfortably over the short-reply threshold and free of anything
// the validator treats as a secret.
const longReply = "Check-in at Harbour Cottage starts at three in the afternoon, and we look forward to welcoming you."

func textResult(content string) *llm.CompletionResult {
	return &llm.CompletionResult{Content: content}
}

func toolResult(calls ...llm.ToolCall) *llm.CompletionResult {
	return &llm.CompletionResult{ToolCalls: calls}
}

func llmToolCall(id string, name models.ToolName, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       id,
		Type:     "function",
		Function: llm.ToolCallFunc{Name: string(name), Arguments: args},
	}
}
