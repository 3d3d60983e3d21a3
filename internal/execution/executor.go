// Package execution implements the Intent Executor: a stateless
// translator from Place/Cancel intents to exchange operations, with
// result classification and an optional shadow (dry-run) mode.
package execution

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"gridcore/internal/apperrors"
	"gridcore/internal/core"
	"gridcore/pkg/concurrency"
)

// pool is the narrow surface Executor needs from pkg/concurrency.WorkerPool,
// kept as an interface so tests can exercise Executor without pulling in a
// real pond pool.
type pool interface {
	Submit(task func()) error
}

// Executor translates intents into calls against an IExchangeGateway. It
// is stateless beyond its rate limiter: callers are responsible for
// retry/requeue decisions based on the returned error's Kind.
type Executor struct {
	gateway    core.IExchangeGateway
	logger     core.ILogger
	limiter    *rate.Limiter
	shadowMode bool
	pool       pool
}

// Option configures optional Executor behavior.
type Option func(*Executor)

// WithPool routes every non-shadow gateway call through p, bounding how
// many REST calls run concurrently across every strategy sharing it.
// ExecutePlace/ExecuteCancel block their caller until the pooled call
// returns, but the caller's own goroutine never dials the network
// directly.
func WithPool(p *concurrency.WorkerPool) Option {
	return func(ex *Executor) { ex.pool = p }
}

// New constructs an Executor. When shadowMode is true, no gateway calls
// are made; Place/Cancel both return simulated success, for backtest and
// dry-run use.
func New(gateway core.IExchangeGateway, logger core.ILogger, shadowMode bool, opts ...Option) *Executor {
	ex := &Executor{
		gateway:    gateway,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(25), 30),
		shadowMode: shadowMode,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// runGateway invokes fn, either inline or — when a pool is configured — on
// a pooled goroutine, blocking until it completes. ctx cancellation is
// honored even while the task sits queued behind the pool's capacity.
func (ex *Executor) runGateway(ctx context.Context, fn func() error) error {
	if ex.pool == nil {
		return fn()
	}
	done := make(chan error, 1)
	if err := ex.pool.Submit(func() { done <- fn() }); err != nil {
		return fmt.Errorf("%w: submit to dispatch pool: %v", apperrors.ErrNetwork, err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecutePlace dispatches a PlaceLimit intent. On success it returns the
// exchange order id; on failure it returns an error whose Kind the caller
// can read via apperrors.Classify to decide whether to requeue.
func (ex *Executor) ExecutePlace(ctx context.Context, intent *core.PlaceLimitIntent) (string, error) {
	if ex.shadowMode {
		return "shadow-" + intent.ClientOrderID, nil
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter wait: %v", apperrors.ErrNetwork, err)
	}

	var orderID string
	err := ex.runGateway(ctx, func() error {
		var placeErr error
		orderID, placeErr = ex.gateway.PlaceLimitOrder(ctx, intent)
		return placeErr
	})
	if err != nil {
		if apperrors.Classify(err) == apperrors.KindBenign {
			ex.logger.Debug("place intent resolved benign", "client_order_id", intent.ClientOrderID, "err", err)
			return "", nil
		}
		return "", err
	}
	return orderID, nil
}

// ExecuteCancel dispatches a Cancel intent. "Already filled / already
// cancelled / not found" classify as benign — no retry, treated as
// already cancelled.
func (ex *Executor) ExecuteCancel(ctx context.Context, intent *core.CancelIntent) error {
	if ex.shadowMode {
		return nil
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter wait: %v", apperrors.ErrNetwork, err)
	}

	err := ex.runGateway(ctx, func() error {
		return ex.gateway.CancelOrder(ctx, intent.Symbol, intent.OrderID)
	})
	if err == nil {
		return nil
	}
	if apperrors.Classify(err) == apperrors.KindBenign {
		ex.logger.Debug("cancel intent resolved benign", "order_id", intent.OrderID, "reason", intent.Reason, "err", err)
		return nil
	}
	return err
}

// Execute dispatches whichever variant of intent is populated. Provided
// for callers that hold a generic core.Intent; internally it still
// routes to the type-specific method, never a single undifferentiated
// call.
func (ex *Executor) Execute(ctx context.Context, intent core.Intent) error {
	switch {
	case intent.Place != nil:
		_, err := ex.ExecutePlace(ctx, intent.Place)
		return err
	case intent.Cancel != nil:
		return ex.ExecuteCancel(ctx, intent.Cancel)
	default:
		return apperrors.ErrInvariant
	}
}
