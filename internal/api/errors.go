package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// ErrCodeInvalidInput marks request bodies that cannot be decoded
const ErrCodeInvalidInput = "INVALID_INPUT"

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // nolint:errcheck // headers already sent
	}
}

// respondServiceError categorizes err and writes it. Internal errors keep
// their cause out of the response body.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, code, message, details := mapServiceError(err)

	entry := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":       code,
		"statusCode": statusCode,
		"error":      err.Error(),
	})
	if statusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	respondError(w, statusCode, code, message, details)
}

// mapServiceError maps service errors to HTTP status, code, message and details.
func mapServiceError(err error) (int, string, string, map[string]interface{}) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, apperrors.CodeInternal, "An internal error occurred", nil
	}
	if catErr.Code == apperrors.CodeInternal {
		return catErr.StatusCode, catErr.Code, "An internal error occurred", nil
	}
	return catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details
}

// parseJSONBody parses a JSON request body. Unknown fields are ignored.
func parseJSONBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
