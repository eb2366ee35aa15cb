package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds configuration for creating a provider client.
type Config struct {
	Endpoint string // Base URL, e.g., "https://api.openai.com/v1"
	Model    string // Model name, e.g., "gpt-4-turbo-preview"
	APIKey   string
}

// OpenAIProvider talks to OpenAI-compatible chat completion endpoints.
type OpenAIProvider struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

var _ CompletionProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI-compatible completion provider.
func NewOpenAIProvider(cfg *Config, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("llm.openai"),
	}, nil
}

// Name implements CompletionProvider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete implements CompletionProvider.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	oaiReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    buildOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if tools := buildOpenAITools(req.Tools); len(tools) > 0 {
		oaiReq.Tools = tools
		oaiReq.ToolChoice = req.ToolChoice
	}

	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("message_count", len(oaiReq.Messages)),
		zap.Int("tool_count", len(oaiReq.Tools)))

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, p.parseError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{
			Type:     ErrorTypeResponse,
			Message:  "no choices in response",
			Model:    p.model,
			Provider: p.Name(),
		}
	}

	msg := resp.Choices[0].Message
	result := &CompletionResult{
		Content: msg.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: ToolCallFunc{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	p.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (p *OpenAIProvider) parseError(err error) error {
	classified := ClassifyError(err)
	classified.Provider = p.Name()
	classified.Model = p.model
	return classified
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		result = append(result, oaiMsg)
	}

	return result
}

func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}

	return result
}
