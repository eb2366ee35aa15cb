package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ CompletionProvider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
// An empty endpoint uses the library's default base URL.
func NewAnthropicProvider(cfg *Config, logger *zap.Logger) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

// Name implements CompletionProvider.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete implements CompletionProvider.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	system, messages := buildAnthropicMessages(req.Messages)
	temperature := float32(req.Temperature)

	areq := anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		System:      system,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	}
	if tools := buildAnthropicTools(req.Tools); len(tools) > 0 {
		areq.Tools = tools
		areq.ToolChoice = &anthropic.ToolChoice{Type: req.ToolChoice}
	}

	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("message_count", len(messages)),
		zap.Int("tool_count", len(areq.Tools)))

	start := time.Now()
	resp, err := p.client.CreateMessages(ctx, areq)
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		classified := ClassifyError(err)
		classified.Provider = p.Name()
		classified.Model = p.model
		return nil, classified
	}

	result := &CompletionResult{
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}

	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text = append(text, *block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			args := string(block.MessageContentToolUse.Input)
			if args == "" {
				args = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      block.MessageContentToolUse.Name,
					Arguments: args,
				},
			})
		}
	}
	result.Content = strings.Join(text, "\n")

	if result.Content == "" && len(result.ToolCalls) == 0 {
		return nil, &Error{
			Type:     ErrorTypeResponse,
			Message:  "no content in response",
			Model:    p.model,
			Provider: p.Name(),
		}
	}

	p.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// buildAnthropicMessages lifts system turns into the system prompt, turns tool
// results into user turns, and merges consecutive turns of the same role.
func buildAnthropicMessages(messages []Message) (string, []anthropic.Message) {
	var system []string
	var result []anthropic.Message

	appendTurn := func(role anthropic.ChatRole, content []anthropic.MessageContent) {
		if len(content) == 0 {
			return
		}
		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, content...)
			return
		}
		result = append(result, anthropic.Message{Role: role, Content: content})
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case RoleTool:
			appendTurn(anthropic.RoleUser, []anthropic.MessageContent{
				anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, false),
			})
		case RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Function.Name, input))
			}
			appendTurn(anthropic.RoleAssistant, content)
		default:
			if msg.Content != "" {
				appendTurn(anthropic.RoleUser, []anthropic.MessageContent{
					anthropic.NewTextMessageContent(msg.Content),
				})
			}
		}
	}

	return strings.Join(system, "\n\n"), result
}

func buildAnthropicTools(tools []ToolDefinition) []anthropic.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolDefinition, len(tools))
	for i, def := range tools {
		result[i] = anthropic.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}
	}
	return result
}
