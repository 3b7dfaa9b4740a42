package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wallet-pnl/internal/types"
)

func TestTaxonomyClasses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		code       string
		statusCode int
		userError  bool
	}{
		{
			name:       "invalid range is client-correctable",
			err:        NewInvalidRangeError("2024-01-02 00:00:00", "2024-01-01 00:00:00"),
			code:       CodeInvalidRange,
			statusCode: http.StatusBadRequest,
			userError:  true,
		},
		{
			name:       "invalid parameter is client-correctable",
			err:        NewInvalidParameterError("start_time", "bad format"),
			code:       CodeInvalidParameter,
			statusCode: http.StatusBadRequest,
			userError:  true,
		},
		{
			name:       "upstream failure is internal",
			err:        NewUpstreamError("allium", fmt.Errorf("connection refused")),
			code:       CodeUpstream,
			statusCode: http.StatusBadGateway,
		},
		{
			name:       "missing price data is internal",
			err:        NewMissingPriceDataError([]string{"bitcoin"}),
			code:       CodeMissingPriceData,
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "empty timeline is internal",
			err:        NewEmptyTimelineError("a", "b"),
			code:       CodeEmptyTimeline,
			statusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, HasCode(tt.err, tt.code))
			assert.Equal(t, tt.statusCode, GetHTTPStatusCode(tt.err))
			assert.Equal(t, tt.userError, IsUserError(tt.err))
			assert.Equal(t, !tt.userError, IsSystemError(tt.err))
		})
	}
}

func TestCategorize_FindsWrappedError(t *testing.T) {
	inner := NewMissingPriceDataError([]string{"ethereum"})
	wrapped := fmt.Errorf("valuation failed: %w", inner)

	got := Categorize(wrapped)
	assert.Same(t, inner, got)
}

func TestCategorize_PlainErrorBecomesInternal(t *testing.T) {
	cause := fmt.Errorf("boom")
	got := Categorize(cause)

	assert.Equal(t, CodeInternal, got.Code)
	assert.ErrorIs(t, got, cause)
	assert.Nil(t, Categorize(nil))
}

func TestCategorize_ServiceError(t *testing.T) {
	got := Categorize(&types.ServiceError{Code: "SOMETHING", Message: "went wrong"})

	assert.Equal(t, "SOMETHING", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewUpstreamError("coingecko", nil)))
	assert.True(t, IsRetryable(NewDatabaseError("query prices", nil)))
	assert.True(t, IsRetryable(NewServiceUnavailableError("allium")))
	assert.False(t, IsRetryable(NewInvalidRangeError("a", "b")))
	assert.False(t, IsRetryable(NewMissingPriceDataError(nil)))
	assert.False(t, IsRetryable(nil))
}
