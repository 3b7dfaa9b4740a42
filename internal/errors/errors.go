// Package errors defines the categorized error taxonomy of the PnL service.
// Validation and user input errors are client-correctable; every other
// category is an internal failure.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/wallet-pnl/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents malformed user input (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryValidation represents semantically invalid parameters (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents unexpected internal errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents balance source or price store failures
	CategoryProvider ErrorCategory = "provider"
	// CategoryData represents inputs that cannot be valued
	CategoryData ErrorCategory = "data"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes
const (
	CodeInvalidRange       = "INVALID_RANGE"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeMissingPriceData   = "MISSING_PRICE_DATA"
	CodeEmptyTimeline      = "EMPTY_TIMELINE"
	CodeDatabase           = "DATABASE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

func newError(category ErrorCategory, status int, code, message string) *CategorizedError {
	return &CategorizedError{Category: category, StatusCode: status, Code: code, Message: message}
}

// with attaches a detail field and returns the error for chaining
func (e *CategorizedError) with(key string, value interface{}) *CategorizedError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *CategorizedError) causedBy(cause error) *CategorizedError {
	e.Cause = cause
	return e
}

// 4xx

// NewInvalidRangeError reports a start time after the end time
func NewInvalidRangeError(start, end string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, CodeInvalidRange, "Start date cannot be after end date").
		with("start_time", start).
		with("end_time", end)
}

// NewInvalidParameterError reports a parameter that failed to parse or is out of bounds
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, CodeInvalidParameter,
		fmt.Sprintf("invalid parameter '%s': %s", param, reason)).
		with("parameter", param).
		with("reason", reason)
}

func NewInvalidAddressError(address string) *CategorizedError {
	return newError(CategoryUserInput, http.StatusBadRequest, CodeInvalidAddress,
		fmt.Sprintf("invalid address format: %s", address)).
		with("address", address)
}

func NewRateLimitError() *CategorizedError {
	return newError(CategoryRateLimit, http.StatusTooManyRequests, CodeRateLimitExceeded, "rate limit exceeded")
}

// 5xx

// NewUpstreamError reports an unreachable or failing balance source or price store
func NewUpstreamError(source string, cause error) *CategorizedError {
	return newError(CategoryProvider, http.StatusBadGateway, CodeUpstream,
		fmt.Sprintf("upstream error: %s", source)).
		with("source", source).
		causedBy(cause)
}

// NewMissingPriceDataError reports tokens with no usable price in range
func NewMissingPriceDataError(tokenIDs []string) *CategorizedError {
	return newError(CategoryData, http.StatusInternalServerError, CodeMissingPriceData,
		fmt.Sprintf("no price data in range for tokens: %v", tokenIDs)).
		with("tokens", tokenIDs)
}

// NewEmptyTimelineError reports a range with no price points at all
func NewEmptyTimelineError(start, end string) *CategorizedError {
	return newError(CategoryData, http.StatusInternalServerError, CodeEmptyTimeline, "no price points in requested range").
		with("start_time", start).
		with("end_time", end)
}

func NewDatabaseError(operation string, cause error) *CategorizedError {
	return newError(CategoryDatabase, http.StatusInternalServerError, CodeDatabase,
		fmt.Sprintf("database error during %s", operation)).
		with("operation", operation).
		causedBy(cause)
}

func NewServiceUnavailableError(service string) *CategorizedError {
	return newError(CategorySystem, http.StatusServiceUnavailable, CodeServiceUnavailable,
		fmt.Sprintf("service unavailable: %s", service)).
		with("service", service)
}

// NewInternalError wraps an unexpected failure. The message is logged, not
// returned to clients.
func NewInternalError(message string, cause error) *CategorizedError {
	return newError(CategorySystem, http.StatusInternalServerError, CodeInternal, message).causedBy(cause)
}

// Categorize categorizes an existing error. Wrapped categorized errors are
// found through the chain; anything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError("unexpected error", err)
}

// HasCode reports whether err categorizes to the given code
func HasCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError reports whether err is client-correctable (4xx)
func IsUserError(err error) bool {
	status := GetHTTPStatusCode(err)
	return err != nil && status >= 400 && status < 500
}

// IsSystemError reports whether err is a server-side failure (5xx)
func IsSystemError(err error) bool {
	return err != nil && GetHTTPStatusCode(err) >= 500
}

// IsRetryable reports whether err is transient. Provider and database
// failures are; of the system errors only 503 is.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
