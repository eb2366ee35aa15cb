package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_KindSurvivesWrapping(t *testing.T) {
	base := New(KindApprovalConflict, "approvals.resolve", "approval already resolved")
	wrapped := fmt.Errorf("approve: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindApprovalConflict, kind)
	assert.True(t, IsKind(wrapped, KindApprovalConflict))
	assert.False(t, IsKind(wrapped, KindToolExecution))
}

func TestError_UnwrapReachesSentinel(t *testing.T) {
	err := Wrap(KindApprovalConflict, "approvals.resolve", ErrNotPending, "cannot approve")
	assert.True(t, errors.Is(err, ErrNotPending))
}

func TestError_Reason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"message only", New(KindConfigMissing, "policy.load", "policies.yaml not found"), "policies.yaml not found"},
		{"message and cause", Wrap(KindProviderInvocation, "complete", errors.New("timeout"), "completion failed"), "completion failed: timeout"},
		{"cause only", Wrap(KindToolExecution, "tool", errors.New("boom"), ""), "boom"},
		{"plain error", errors.New("plain"), "plain"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestError_WithDoesNotMutateOriginal(t *testing.T) {
	base := New(KindToolExecution, "tool", "failed")
	withField := base.With("tool", "send_email")

	assert.Nil(t, base.Fields)
	assert.Equal(t, "send_email", withField.Fields["tool"])
}

func TestError_ErrorString(t *testing.T) {
	err := Wrap(KindProviderInvocation, "llm.complete", errors.New("503"), "server error")
	assert.Equal(t, "llm.complete: provider_invocation_failure: server error: 503", err.Error())
}
