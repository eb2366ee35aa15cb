package services

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/llm"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

// Fixed replies used when the generated text cannot be shown.
const (
	EscalationMessage = "I'm escalating your request to our team for immediate assistance. Someone will contact you shortly."
	FallbackMessage   = "I'm having trouble processing your request right now. Let me have a team member assist you directly."
	ValidationMessage = "I need to have a human team member review your request to ensure I provide accurate information. Someone will get back to you shortly."
)

// ProcessorSettings are the completion parameters for every provider call.
type ProcessorSettings struct {
	Temperature float64
	MaxTokens   int
}

// DefaultProcessorSettings returns temperature 0.3 and 1000 max tokens.
func DefaultProcessorSettings() ProcessorSettings {
	return ProcessorSettings{
		Temperature: llm.DefaultTemperature,
		MaxTokens:   llm.DefaultMaxTokens,
	}
}

// RequestProcessor turns one guest message into a reply or a reviewable draft.
type RequestProcessor interface {
	// Process never fails: provider and validation failures produce a fixed
	// reply that requires approval.
	Process(ctx context.Context, message string, reqCtx *models.RequestContext) *models.AIResponse
}

type requestProcessor struct {
	provider  llm.CompletionProvider
	safety    *SafetyGate
	tools     ToolExecutor
	validator *ResponseValidator
	gate      *ApprovalGate
	policy    policy.Source
	settings  ProcessorSettings
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

var _ RequestProcessor = (*requestProcessor)(nil)

// NewRequestProcessor creates a processor. Each collaborator is required.
func NewRequestProcessor(
	provider llm.CompletionProvider,
	safety *SafetyGate,
	tools ToolExecutor,
	validator *ResponseValidator,
	gate *ApprovalGate,
	source policy.Source,
	settings ProcessorSettings,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) RequestProcessor {
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = llm.DefaultMaxTokens
	}
	return &requestProcessor{
		provider:  provider,
		safety:    safety,
		tools:     tools,
		validator: validator,
		gate:      gate,
		policy:    source,
		settings:  settings,
		auditor:   auditor,
		logger:    logger.Named("processor"),
	}
}

func (p *requestProcessor) Process(ctx context.Context, message string, reqCtx *models.RequestContext) *models.AIResponse {
	if reqCtx == nil {
		reqCtx = &models.RequestContext{}
	}

	analysis := p.safety.Analyze(message)
	safety, err := p.safety.Screen(ctx, message)
	if err != nil {
		return p.fallback(apperrors.Wrap(apperrors.KindConfigMissing, "processor.screen", err, "safety screen unavailable"))
	}

	if safety.RiskLevel == models.RiskLevelHigh {
		p.logger.Warn("Escalating high-risk message", zap.Strings("violations", safety.Violations))
		p.auditor.LogEscalation(ctx, safety.Violations)
		return &models.AIResponse{
			Message:          EscalationMessage,
			Confidence:       1.0,
			ToolCalls:        []models.ToolCall{},
			RiskFlags:        []models.RiskFlag{models.RiskFlagEmergencyKeywords},
			RequiresApproval: true,
			Reasoning:        "High-risk request detected: " + strings.Join(safety.Violations, ", "),
			Escalated:        true,
		}
	}

	cfg, err := p.policy.Load(ctx)
	if err != nil {
		return p.fallback(apperrors.Wrap(apperrors.KindConfigMissing, "processor.prompts", err, "prompts unavailable"))
	}

	exchange := p.buildExchange(cfg.Prompts, reqCtx, message)

	first, err := p.complete(ctx, exchange, llm.ConciergeTools())
	if err != nil {
		return p.fallback(err)
	}

	finalText := first.Content
	toolCalls := []models.ToolCall{}

	if len(first.ToolCalls) > 0 {
		for _, tc := range first.ToolCalls {
			executed := p.tools.Execute(ctx, models.ToolCall{
				ID:           tc.ID,
				Name:         models.ToolName(tc.Function.Name),
				RawArguments: tc.Function.Arguments,
			})
			toolCalls = append(toolCalls, executed)
			exchange = exchange.WithToolRound(tc, toolResultContent(executed))
		}

		second, err := p.complete(ctx, exchange, nil)
		if err != nil {
			resp := p.fallback(err)
			resp.ToolCalls = toolCalls
			return resp
		}
		finalText = second.Content
	}

	confidence := ScoreConfidence(finalText, toolCalls, analysis, safety)

	validation := p.validator.Validate(message, finalText, confidence)
	if !validation.Safe {
		p.logger.Info("Generated reply failed validation",
			zap.Error(validation.Err()),
			zap.Strings("risk_flags", models.RiskFlagStrings(validation.RiskFlags)))
		p.auditor.LogValidationFailure(ctx, validation.LeakSuspected,
			models.RiskFlagStrings(validation.RiskFlags), validation.Reason)
		return &models.AIResponse{
			Message:          ValidationMessage,
			Confidence:       0,
			ToolCalls:        toolCalls,
			RiskFlags:        validation.RiskFlags,
			RequiresApproval: true,
			Reasoning:        validation.Reason,
		}
	}

	decision, err := p.gate.ShouldRequireApproval(ctx, confidence, validation.RiskFlags, reqCtx.IsFirstContact())
	if err != nil {
		p.logger.Error("Approval decision used fail-closed default", zap.Error(err))
	}

	return &models.AIResponse{
		Message:          finalText,
		Confidence:       confidence,
		ToolCalls:        toolCalls,
		RiskFlags:        validation.RiskFlags,
		RequiresApproval: decision.Required,
		Reasoning:        decision.Reason,
	}
}

// buildExchange orders the turns: prompts, history, context notes, then the
// guest's message.
func (p *requestProcessor) buildExchange(prompts policy.Prompts, reqCtx *models.RequestContext, message string) llm.Exchange {
	exchange := llm.NewExchange(
		llm.Message{Role: llm.RoleSystem, Content: prompts.System},
		llm.Message{Role: llm.RoleSystem, Content: prompts.Tools},
	)

	for _, turn := range reqCtx.History {
		role := llm.RoleUser
		if turn.Role == models.HistoryRoleAssistant {
			role = llm.RoleAssistant
		}
		exchange = exchange.Append(llm.Message{Role: role, Content: turn.Content})
	}

	if reqCtx.Booking != nil {
		exchange = exchange.Append(llm.Message{Role: llm.RoleSystem, Content: contextNote("Booking context", reqCtx.Booking)})
	}
	if reqCtx.Property != nil {
		// Property's secure fields are excluded from its JSON form.
		exchange = exchange.Append(llm.Message{Role: llm.RoleSystem, Content: contextNote("Property context", reqCtx.Property)})
	}

	return exchange.Append(llm.Message{Role: llm.RoleUser, Content: message})
}

func (p *requestProcessor) complete(ctx context.Context, exchange llm.Exchange, tools []llm.ToolDefinition) (*llm.CompletionResult, error) {
	req := &llm.CompletionRequest{
		Messages:    exchange.Messages(),
		Temperature: p.settings.Temperature,
		MaxTokens:   p.settings.MaxTokens,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = llm.ToolChoiceAuto
	}

	result, err := p.provider.Complete(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProviderInvocation, "processor.complete", err, "completion failed").
			With("provider", p.provider.Name())
	}
	return result, nil
}

func (p *requestProcessor) fallback(err error) *models.AIResponse {
	fields := []zap.Field{zap.Error(err)}
	if errType := llm.GetErrorType(err); errType != llm.ErrorTypeUnknown {
		fields = append(fields,
			zap.String("provider_error_type", string(errType)),
			zap.Bool("provider_error_retryable", llm.IsRetryable(err)))
	}
	p.logger.Error("Returning fallback reply", fields...)
	return &models.AIResponse{
		Message:          FallbackMessage,
		Confidence:       0,
		ToolCalls:        []models.ToolCall{},
		RiskFlags:        []models.RiskFlag{models.RiskFlagLowConfidence},
		RequiresApproval: true,
		Reasoning:        apperrors.Reason(err),
	}
}

func contextNote(label string, v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return label + ": unavailable"
	}
	return label + ": " + string(data)
}

// toolResultContent is the JSON fed back to the provider for one call.
func toolResultContent(call models.ToolCall) string {
	var payload any = call.Result
	if !call.Success {
		payload = map[string]any{"success": false, "error": call.Error}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"error":"result could not be encoded"}`
	}
	return string(data)
}
