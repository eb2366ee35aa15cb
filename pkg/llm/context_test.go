package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext_Merges(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]string{"thread_id": "t-1"})
	ctx = WithContext(ctx, map[string]string{"message_id": "m-1", "empty": ""})

	got := GetContext(ctx)
	assert.Equal(t, map[string]string{"thread_id": "t-1", "message_id": "m-1"}, got)
}

func TestGetContext_ReturnsCopy(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]string{"thread_id": "t-1"})

	got := GetContext(ctx)
	got["thread_id"] = "changed"

	assert.Equal(t, "t-1", GetContext(ctx)["thread_id"])
}

func TestGetContext_Missing(t *testing.T) {
	assert.Nil(t, GetContext(context.Background()))
	assert.Nil(t, contextFields(context.Background()))
}

func TestContextFields_Sorted(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]string{"b": "2", "a": "1"})

	fields := contextFields(ctx)
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "a", fields[0].Key)
		assert.Equal(t, "b", fields[1].Key)
	}
}
