// Package executor issues vendor quote calls with global pacing and a
// bounded retry for transient failures.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/ablair264/SplitLease-Backend/internal/models"
	"github.com/ablair264/SplitLease-Backend/internal/provider"
	"github.com/ablair264/SplitLease-Backend/internal/telemetry"
)

// Executor serializes pacing across every caller so the vendor sees at most
// one quote request per interval regardless of how many jobs run. Share one
// instance per vendor.
type Executor struct {
	client      provider.Client
	minInterval time.Duration
	retryLimit  int

	mu       sync.Mutex
	lastCall time.Time
}

// New builds an executor. A zero minInterval disables pacing, a negative
// retryLimit is treated as zero.
func New(client provider.Client, minInterval time.Duration, retryLimit int) *Executor {
	if retryLimit < 0 {
		retryLimit = 0
	}
	return &Executor{client: client, minInterval: minInterval, retryLimit: retryLimit}
}

// Execute performs one quote calculation, waiting out the pacing interval
// first. Transient vendor errors are retried up to the configured limit,
// each attempt paced like any other call. Auth and permanent errors return
// immediately.
func (e *Executor) Execute(ctx context.Context, sess provider.Session, handle provider.VehicleHandle, req models.QuoteRequest) (models.QuoteResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.retryLimit; attempt++ {
		if err := e.pace(ctx); err != nil {
			return models.QuoteResult{}, err
		}

		start := time.Now()
		res, err := e.client.CalculateQuote(ctx, sess, handle, req)
		telemetry.ObserveVendorCall("quote", time.Since(start), err)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !provider.IsTransient(err) {
			return models.QuoteResult{}, err
		}
	}
	return models.QuoteResult{}, lastErr
}

// pace blocks until the interval since the previous call has elapsed. The
// slot is claimed under the lock so concurrent callers line up rather than
// release together.
func (e *Executor) pace(ctx context.Context) error {
	if e.minInterval <= 0 {
		return ctx.Err()
	}

	e.mu.Lock()
	now := time.Now()
	next := e.lastCall.Add(e.minInterval)
	if next.Before(now) {
		next = now
	}
	e.lastCall = next
	e.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
