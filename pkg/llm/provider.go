// Package llm talks to tool-calling completion providers.
package llm

import (
	"context"
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool choice modes.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// Completion defaults for guest replies.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc represents a function call within a tool call.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of an exchange.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// CompletionRequest is one call to the provider.
type CompletionRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  string
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// CompletionResult is the provider's answer: text, tool calls, or both.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
}

// CompletionProvider produces a completion for an exchange.
type CompletionProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
	Name() string
}
