package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchange_AppendDoesNotMutate(t *testing.T) {
	base := NewExchange(
		Message{Role: RoleSystem, Content: "system"},
		Message{Role: RoleUser, Content: "hello"},
	)
	extended := base.Append(Message{Role: RoleAssistant, Content: "hi"})

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, 3, extended.Len())

	// Two branches from the same base must not share backing storage.
	a := base.Append(Message{Role: RoleAssistant, Content: "a"})
	b := base.Append(Message{Role: RoleAssistant, Content: "b"})
	assert.Equal(t, "a", a.Messages()[2].Content)
	assert.Equal(t, "b", b.Messages()[2].Content)
}

func TestExchange_MessagesReturnsCopy(t *testing.T) {
	ex := NewExchange(Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1"}}})

	msgs := ex.Messages()
	msgs[0].Content = "changed"
	msgs[0].ToolCalls[0].ID = "changed"

	again := ex.Messages()
	assert.Empty(t, again[0].Content)
	assert.Equal(t, "call_1", again[0].ToolCalls[0].ID)
}

func TestExchange_WithToolRound(t *testing.T) {
	call := ToolCall{ID: "call_9", Type: "function", Function: ToolCallFunc{Name: "get_property_faq", Arguments: `{"topic":"wifi"}`}}
	ex := NewExchange(Message{Role: RoleUser, Content: "wifi?"}).WithToolRound(call, `{"found":true}`)

	msgs := ex.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "call_9", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, RoleTool, msgs[2].Role)
	assert.Equal(t, "call_9", msgs[2].ToolCallID)
	assert.Equal(t, `{"found":true}`, msgs[2].Content)
}
