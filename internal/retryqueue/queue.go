// Package retryqueue implements the Retry Queue: a bounded-attempt,
// exponential-backoff dispatcher for intents that failed on first
// execution, routing by intent variant so a Cancel can never be
// mis-dispatched to the place path.
package retryqueue

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"gridcore/internal/apperrors"
	"gridcore/internal/core"
	"gridcore/internal/metrics"
)

// Dispatcher routes an intent to the executor method matching its
// variant. Implemented by internal/execution.Executor.
type Dispatcher interface {
	ExecutePlace(ctx context.Context, intent *core.PlaceLimitIntent) (string, error)
	ExecuteCancel(ctx context.Context, intent *core.CancelIntent) error
}

// Config parameterizes the retry policy.
type Config struct {
	MaxAttempts    uint
	MaxElapsed     time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig is the standard retry budget: 3 attempts within 30s
// elapsed, 0.5s initial backoff doubling up to a cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		MaxElapsed:     30 * time.Second,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// item is a queued retry job awaiting its turn on the worker goroutine.
type item struct {
	intent  core.Intent
	lastErr error
}

// Queue accepts failed intents and resubmits them through Dispatcher with
// bounded attempts and exponential backoff with jitter. Cancellation on
// shutdown drains without dispatching new attempts.
type Queue struct {
	stratID    string
	logger     core.ILogger
	dispatcher Dispatcher
	cfg        Config
	policy     failsafe.Executor[any]

	mu      sync.Mutex
	pending []item
	stopped bool
	workCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Queue bound to dispatcher, using cfg's attempt/backoff
// budget. stratID labels the retries-attempted metric.
func New(stratID string, dispatcher Dispatcher, logger core.ILogger, cfg Config) *Queue {
	policy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return apperrors.IsRetryable(err)
		}).
		WithBackoff(cfg.InitialBackoff, cfg.MaxBackoff).
		WithJitter(cfg.InitialBackoff / 2).
		WithMaxRetries(int(cfg.MaxAttempts) - 1).
		WithMaxDuration(cfg.MaxElapsed).
		Build()

	q := &Queue{
		stratID:    stratID,
		logger:     logger,
		dispatcher: dispatcher,
		cfg:        cfg,
		policy:     failsafe.With[any](policy),
		workCh:     make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
	}
	return q
}

// Enqueue adds a failed intent for retry. lastErr is recorded with the
// queued item; the dispatch itself reevaluates retryability per attempt.
func (q *Queue) Enqueue(intent core.Intent, lastErr error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, item{intent: intent, lastErr: lastErr})
	q.mu.Unlock()

	select {
	case q.workCh <- struct{}{}:
	default:
	}
}

// Drain processes queued items and, when the queue is empty, waits for
// more; it returns only when ctx is cancelled or Stop is called. It must
// be run by a single worker goroutine owned by the caller (the strategy
// runner or orchestrator).
func (q *Queue) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		q.mu.Lock()
		if q.stopped || len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-q.workCh:
				continue
			case <-ctx.Done():
				return
			case <-q.doneCh:
				return
			}
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.dispatch(ctx, next)
	}
}

// dispatch routes by variant — cancel to ExecuteCancel, place to
// ExecutePlace, never the reverse — and runs it under the retry policy.
func (q *Queue) dispatch(ctx context.Context, it item) {
	_, err := q.policy.GetWithExecution(func(exec failsafe.Execution[any]) (any, error) {
		metrics.RetriesAttempted.WithLabelValues(q.stratID).Inc()
		switch {
		case it.intent.Cancel != nil:
			return nil, q.dispatcher.ExecuteCancel(ctx, it.intent.Cancel)
		case it.intent.Place != nil:
			_, err := q.dispatcher.ExecutePlace(ctx, it.intent.Place)
			return nil, err
		default:
			return nil, apperrors.ErrInvariant
		}
	})
	if err != nil {
		q.logger.Warn("retry queue exhausted", "err", err)
	}
}

// Stop signals the queue to drain in-flight attempts without dispatching
// new ones; pending un-started items are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.pending = nil
	q.mu.Unlock()
	close(q.doneCh)
}
