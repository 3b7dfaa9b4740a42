// Package worker runs price ingestion on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/storage"
	"github.com/wallet-pnl/internal/types"
)

// Runner performs one ingestion run
type Runner interface {
	Run(ctx context.Context) (*types.IngestRunSummary, error)
}

// IngestWorker triggers a Runner immediately and then every interval
type IngestWorker struct {
	runner   Runner
	interval time.Duration
	logger   *logging.Logger

	mu          sync.RWMutex
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastRunTime time.Time
	lastSummary *types.IngestRunSummary
	lastErr     error
	runs        int
}

// IngestWorkerConfig holds configuration for an ingest worker
type IngestWorkerConfig struct {
	Runner   Runner
	Interval time.Duration
}

// NewIngestWorker creates a new ingest worker
func NewIngestWorker(cfg *IngestWorkerConfig) (*IngestWorker, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = time.Hour
	}
	if interval < time.Minute {
		return nil, fmt.Errorf("interval must be at least one minute, got %v", interval)
	}

	return &IngestWorker{
		runner:   cfg.Runner,
		interval: interval,
		logger:   logging.GetGlobalLogger().WithField("component", "ingest_worker"),
	}, nil
}

// Start runs ingestion once and then keeps polling until Stop or ctx ends
func (w *IngestWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("ingest worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.WithField("interval", w.interval.String()).Info("Starting ingest worker")

	go w.pollLoop(ctx)

	return nil
}

// Stop gracefully stops the worker, waiting for an in-flight run
func (w *IngestWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("ingest worker is not running")
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.Info("Ingest worker stopped gracefully")
	case <-ctx.Done():
		w.logger.Warn("Ingest worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return nil
}

// Done is closed when the poll loop exits
func (w *IngestWorker) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.doneCh
}

func (w *IngestWorker) pollLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Ingest worker context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info("Ingest worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single run and records its outcome. A run skipped
// because another process holds the lock is not an error.
func (w *IngestWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	summary, err := w.runner.Run(ctx)

	w.mu.Lock()
	w.lastRunTime = start
	w.lastErr = err
	w.runs++
	if summary != nil {
		w.lastSummary = summary
	}
	w.mu.Unlock()

	switch {
	case errors.Is(err, storage.ErrLockHeld):
		w.logger.Info("Ingest run skipped, another run holds the lock")
	case err != nil:
		w.logger.WithError(err).Error("Ingest run failed")
	default:
		w.logger.WithFields(map[string]interface{}{
			"runId":    summary.RunID,
			"tokens":   len(summary.TokensIngested),
			"points":   summary.PointsStored,
			"failures": len(summary.Failures),
			"duration": time.Since(start).String(),
		}).Info("Ingest run completed")
	}
}

// GetStatus returns current worker status
func (w *IngestWorker) GetStatus() *IngestWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := &IngestWorkerStatus{
		Running:             w.running,
		LastRunTime:         w.lastRunTime,
		LastSummary:         w.lastSummary,
		Runs:                w.runs,
		PollIntervalSeconds: int(w.interval.Seconds()),
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	return status
}

// IngestWorkerStatus represents the current status of an ingest worker
type IngestWorkerStatus struct {
	Running             bool
	LastRunTime         time.Time
	LastSummary         *types.IngestRunSummary
	LastError           string
	Runs                int
	PollIntervalSeconds int
}
