package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
)

// ApiResponse is the envelope for every successful response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationErrorResponse is the 422 body listing every rejected field.
type ValidationErrorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
	Error   string              `json:"error"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   errorCode,
		"message": message,
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

// writeValidationError writes the 422 body for ve.
func writeValidationError(w http.ResponseWriter, ve *apperrors.ValidationError) error {
	return WriteJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Success: false,
		Message: "Validation failed",
		Errors:  ve.Fields,
		Error:   ve.First(),
	})
}

// writeSuccess writes a success envelope and logs encoding failures.
func writeSuccess(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any, message string) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data, Message: message}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError writes an error response and logs encoding failures.
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps a service error onto an HTTP response.
// notFound is the message for apperrors.ErrNotFound; failure prefixes unexpected errors.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFound, failure string) {
	if ve, ok := apperrors.AsValidation(err); ok {
		if err := writeValidationError(w, ve); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", notFound)
	case errors.Is(err, apperrors.ErrAlreadyProcessed):
		writeError(w, logger, http.StatusBadRequest, "already_processed", "Document already processed")
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, logger, http.StatusConflict, "conflict", err.Error())
	default:
		logger.Error(failure, zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", failure+": "+err.Error())
	}
}

// decodeJSON decodes the request body into dst, writing a 400 on malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}
