package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// ErrorClassifier decides whether a failed call is retried.
type ErrorClassifier func(err error) domain.ErrorClass

// RetryObserver is notified before every retry wait.
type RetryObserver interface {
	ObserveRetry(operation string, attempt int, wait time.Duration)
}

type Option func(*Executor)

func WithObserver(observer RetryObserver) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// Executor is the single place collaborator failure policy lives: bounded exponential
// backoff for transient failures, immediate return for configuration and fatal ones.
type Executor struct {
	cfg      Config
	sleep    func(context.Context, time.Duration) error
	observer RetryObserver

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg.normalize(),
		sleep:    sleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Config() Config {
	return e.cfg
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify func(error) domain.ErrorClass,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = ClassifyDomainError
	}

	return e.executeWithRetry(ctx, op, fn, classify)
}

func (e *Executor) executeWithRetry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify func(error) domain.ErrorClass,
) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.attempt(ctx, operation, fn, classify)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		if class := classify(err); class != domain.ErrorClassTransient {
			return err
		}
		if attempt > e.cfg.MaxRetries {
			return fmt.Errorf("%s: %w after %d attempts: %w", operation, domain.ErrRetriesExhausted, attempt, err)
		}

		wait := e.cfg.Backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.MaxRetries+1,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if e.observer != nil {
			e.observer.ObserveRetry(operation, attempt, wait)
		}

		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// attempt runs one call under the per-call timeout. Hitting that timeout is a
// transient failure; cancellation of ctx itself is not. With the breaker enabled an
// open circuit fails the attempt as temporary, so it still spends one slot of the
// retry budget and waits its backoff.
func (e *Executor) attempt(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify func(error) domain.ErrorClass,
) error {
	call := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			if !domain.IsKind(err, domain.ErrTemporary) {
				return domain.WrapError(domain.ErrTemporary, "call timeout", err)
			}
		}
		return err
	}
	if !e.cfg.BreakerEnabled {
		return call()
	}

	_, err := e.circuitBreaker(breakerKey(operation), classify).Execute(func() (any, error) {
		return nil, call()
	})
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func (e *Executor) circuitBreaker(operation string, classify func(error) domain.ErrorClass) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) {
				return true
			}
			// A bad credential says nothing about the remote service's health.
			return classify(err) == domain.ErrorClassConfiguration
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// breakerKey groups operations such as "classify.LIABILITY" under one breaker per collaborator.
func breakerKey(operation string) string {
	if idx := strings.IndexByte(operation, '.'); idx > 0 {
		return operation[:idx]
	}
	return operation
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClassifyDomainError maps collaborator errors onto the retry taxonomy.
func ClassifyDomainError(err error) domain.ErrorClass {
	switch {
	case err == nil:
		return domain.ErrorClassFatal
	case domain.IsKind(err, domain.ErrConfiguration):
		return domain.ErrorClassConfiguration
	case errors.Is(err, context.Canceled):
		return domain.ErrorClassFatal
	case domain.IsKind(err, domain.ErrTemporary),
		errors.Is(err, context.DeadlineExceeded),
		IsCircuitOpen(err):
		return domain.ErrorClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ErrorClassTransient
	}
	return domain.ErrorClassFatal
}

func sleepContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
