package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ApiResponse is the envelope for every JSON reply.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned with 400 when a body fails validation.
type ValidationErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Details []FieldError `json:"details"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps a service error to a status code. Raw error text is
// logged but never returned to the caller.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status, code, text := http.StatusInternalServerError, "internal_error", "Something went wrong"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, text = http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, apperrors.ErrNotPending), apperrors.IsKind(err, apperrors.KindApprovalConflict):
		status, code, text = http.StatusConflict, "approval_conflict", "Approval has already been resolved"
	case errors.Is(err, apperrors.ErrConflict):
		status, code, text = http.StatusConflict, "conflict", "Resource already exists"
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.String("error", logging.SanitizeError(err)))
	} else {
		logger.Warn(msg, zap.Int("status", status), zap.Error(err))
	}

	if werr := ErrorResponse(w, status, code, text); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func writeValidationError(w http.ResponseWriter, logger *zap.Logger, details []FieldError) {
	resp := ValidationErrorResponse{Success: false, Error: "Validation failed", Details: details}
	if err := WriteJSON(w, http.StatusBadRequest, resp); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
