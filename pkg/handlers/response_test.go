package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "bad_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "resource not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message))

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body ApiResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.errorCode, body.Error)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", fmt.Errorf("approval x: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"not pending", fmt.Errorf("resolve: %w", apperrors.ErrNotPending), http.StatusConflict, "approval_conflict"},
		{"conflict kind", apperrors.New(apperrors.KindApprovalConflict, "approvals.resolve", "already resolved"), http.StatusConflict, "approval_conflict"},
		{"unique violation", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"anything else", errors.New("dial tcp postgres://admin:hunter2@db:5432: refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, zap.NewNop(), "failed", tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			var body ApiResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
			assert.NotContains(t, w.Body.String(), "hunter2")
		})
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	payload := `{"message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	w := httptest.NewRecorder()

	var dst map[string]string
	assert.Error(t, decodeJSON(w, req, &dst))
}
