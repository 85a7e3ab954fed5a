package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/core/ports/driving"
	"github.com/custodia-labs/autorfp/internal/logger"
)

// Ensure RetentionSweeper implements the interface.
var _ driving.RetentionService = (*RetentionSweeper)(nil)

// RetentionSweeper periodically deletes terminal workflows older than the
// retention window. Deletion cascades to every dependent record.
type RetentionSweeper struct {
	store    driven.WorkflowStore
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// RetentionOption configures a RetentionSweeper.
type RetentionOption func(*RetentionSweeper)

// WithRetentionClock sets the time source used to compute the cutoff.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(r *RetentionSweeper) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRetentionSweeper creates a sweeper from retention settings.
func NewRetentionSweeper(store driven.WorkflowStore, cfg domain.RetentionSettings, opts ...RetentionOption) *RetentionSweeper {
	defaults := domain.DefaultAppSettings().Retention
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	r := &RetentionSweeper{
		store:    store,
		window:   cfg.Window,
		interval: cfg.Interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start sweeps immediately, then once per interval. It blocks until Stop is
// called or ctx is done.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil // Already running
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()
	defer close(doneCh)

	r.sweepAndLog(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep.
func (r *RetentionSweeper) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()

	<-doneCh
	return nil
}

func (r *RetentionSweeper) markStopped() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *RetentionSweeper) sweepAndLog(ctx context.Context) {
	n, err := r.Sweep(ctx)
	if err != nil {
		logger.Warn("retention: sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.Info("retention: deleted %d expired workflows", n)
	}
}

// Sweep deletes terminal workflows that ended before now minus the window.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	return r.SweepOlderThan(ctx, r.window)
}

// SweepOlderThan deletes terminal workflows that ended more than age ago.
func (r *RetentionSweeper) SweepOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if age < 0 {
		return 0, &domain.InvalidInputError{Field: "age", Reason: "must not be negative"}
	}
	ids, err := r.store.DeleteTerminalBefore(ctx, r.now().Add(-age))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		logger.Debug("retention: deleted workflow %s", id)
	}
	return len(ids), nil
}
