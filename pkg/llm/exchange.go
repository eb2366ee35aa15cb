package llm

// Exchange is an immutable ordered list of turns. Every Append returns a new
// Exchange, so a phase can never mutate the turns seen by an earlier phase.
type Exchange struct {
	turns []Message
}

// NewExchange starts an exchange with the given turns.
func NewExchange(turns ...Message) Exchange {
	return Exchange{}.Append(turns...)
}

// Append returns a new exchange with turns added at the end.
func (e Exchange) Append(turns ...Message) Exchange {
	next := make([]Message, 0, len(e.turns)+len(turns))
	next = append(next, e.turns...)
	for _, t := range turns {
		next = append(next, copyMessage(t))
	}
	return Exchange{turns: next}
}

// WithToolRound appends the assistant turn carrying one tool call followed by
// the tool's result turn.
func (e Exchange) WithToolRound(call ToolCall, result string) Exchange {
	return e.Append(
		Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		Message{Role: RoleTool, Content: result, ToolCallID: call.ID},
	)
}

// Messages returns a copy of the turns.
func (e Exchange) Messages() []Message {
	out := make([]Message, len(e.turns))
	for i, t := range e.turns {
		out[i] = copyMessage(t)
	}
	return out
}

// Len returns the number of turns.
func (e Exchange) Len() int {
	return len(e.turns)
}

func copyMessage(m Message) Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}
