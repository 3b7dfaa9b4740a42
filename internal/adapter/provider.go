// Package adapter provides clients for the upstream APIs the PnL service
// depends on: the balance source and the market data provider.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wallet-pnl/internal/circuitbreaker"
	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/retry"
)

// StatusError is a non-2xx response from an upstream API
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status=%d, body=%s", e.Source, e.StatusCode, e.Body)
}

// isClientError reports 4xx responses other than 429. Repeating them cannot
// succeed and they say nothing about upstream health.
func isClientError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests
}

// ProviderHealth represents the health status of an upstream provider
type ProviderHealth struct {
	Name             string        `json:"name"`
	CircuitState     string        `json:"circuitState"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess,omitempty"`
	LastFailure      time.Time     `json:"lastFailure,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// Provider guards every call to one upstream with a circuit breaker around
// exponential-backoff retries, and tracks per-attempt health.
type Provider struct {
	name        string
	breaker     *circuitbreaker.CircuitBreaker
	retryConfig *retry.RetryConfig
	logger      *logging.Logger

	mu               sync.RWMutex
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int
}

// NewProvider creates a guarded provider. Nil configs use the package defaults.
func NewProvider(name string, retryConfig *retry.RetryConfig, cbConfig *circuitbreaker.Config) *Provider {
	if retryConfig == nil {
		retryConfig = retry.DefaultRetryConfig()
	}
	if cbConfig == nil {
		cbConfig = circuitbreaker.DefaultConfig(name)
	}
	cb := *cbConfig
	cb.Name = name
	cb.IsFailure = func(err error) bool {
		return !isClientError(err) && !errors.Is(err, context.Canceled)
	}

	return &Provider{
		name:        name,
		breaker:     circuitbreaker.NewCircuitBreaker(&cb),
		retryConfig: retryConfig,
		logger:      logging.GetGlobalLogger().WithField("provider", name),
	}
}

// Name returns the upstream's name
func (p *Provider) Name() string {
	return p.name
}

// Call runs fn under the breaker and retry policy. Failures come back
// categorized: ServiceUnavailable while the circuit is open, UpstreamError
// otherwise.
func (p *Provider) Call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	logger := p.logger.WithField("operation", operation)

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, p.retryConfig, func(ctx context.Context, attempt int) error {
			start := time.Now()
			err := fn(ctx)
			p.record(time.Since(start), err)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"attempt": attempt,
					"error":   err.Error(),
				}).Debug("Upstream call failed")
			}
			if isClientError(err) {
				return retry.Permanent(err)
			}
			return err
		})
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		logger.Warn("Circuit breaker is open, provider unavailable")
		return apperrors.NewServiceUnavailableError(p.name)
	}

	logger.WithError(err).Error("Upstream call failed after retries")
	return apperrors.NewUpstreamError(p.name, err)
}

// malformed reports a 2xx response whose body could not be used
func (p *Provider) malformed(err error) error {
	p.logger.WithError(err).Error("Upstream returned a malformed response")
	return apperrors.NewUpstreamError(p.name, err)
}

func (p *Provider) record(latency time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.totalLatency += latency
	if err != nil {
		p.failedReqs++
		p.consecutiveFails++
		p.lastFailure = time.Now()
		return
	}
	p.successfulReqs++
	p.consecutiveFails = 0
	p.lastSuccess = time.Now()
}

// GetHealth returns the current health status of the provider
func (p *Provider) GetHealth() *ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var avg time.Duration
	if p.totalRequests > 0 {
		avg = p.totalLatency / time.Duration(p.totalRequests)
	}
	state := p.breaker.GetState()

	return &ProviderHealth{
		Name:             p.name,
		CircuitState:     string(state),
		TotalRequests:    p.totalRequests,
		SuccessfulReqs:   p.successfulReqs,
		FailedReqs:       p.failedReqs,
		AverageLatency:   avg,
		LastSuccess:      p.lastSuccess,
		LastFailure:      p.lastFailure,
		ConsecutiveFails: p.consecutiveFails,
		IsHealthy:        state == circuitbreaker.StateClosed,
	}
}
