package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	retrygo "github.com/avast/retry-go"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
)

// Executor runs calls under a named strategy, applying retry, jitter, and
// (for strategies with CircuitBreaker enabled) the shared breaker registry.
// This is spec.md §4.1's single operation: "execute f with strategy S against
// service svc for operation name op".
type Executor struct {
	Breakers *Registry
}

// NewExecutor builds an Executor with a fresh breaker registry using the default config.
func NewExecutor() *Executor {
	return &Executor{Breakers: NewRegistry(DefaultBreakerConfig)}
}

// Execute runs f, retrying per strategy and consulting/updating the circuit
// breaker when strategy.CircuitBreaker is set. f must return a *errors.DomainError
// (or nil) so retryability can be classified; any other error is treated as Infra.
func (e *Executor) Execute(ctx context.Context, service, operation string, strategy Strategy, f func(ctx context.Context) error) error {
	strategy = StrategyFor(operation, strategy)
	logger := log.FromContext(ctx).With("service", service, "operation", operation, "strategy", strategy.Name)

	if strategy.CircuitBreaker {
		if err := e.Breakers.Allow(service, operation); err != nil {
			logger.Warnw("circuit open, rejecting call without reaching the SDK")
			return err
		}
	}

	attempts := 0
	err := retrygo.Do(
		func() error {
			attempts++
			callErr := f(ctx)
			if callErr == nil {
				return nil
			}
			return classify(callErr)
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(strategy.MaxAttempts)),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			return isRetryable(err)
		}),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			return backoffDelay(strategy, int(n)+1)
		}),
	)

	if strategy.CircuitBreaker {
		if err != nil && isRetryable(err) {
			// Exhausted retries on a retryable error: this counts as a failure for breaker purposes.
			e.Breakers.ReportFailure(service, operation)
		} else if err != nil {
			// Non-retryable failures (validation, not-found, ...) do not trip the breaker.
		} else {
			e.Breakers.ReportSuccess(service, operation)
		}
	}

	if err != nil {
		logger.Debugw("call failed after retries", "attempts", attempts, "error", err)
		if de, ok := err.(*domainerrors.DomainError); ok && de.Retryable() {
			return domainerrors.New(domainerrors.Infra, "retries exhausted", de)
		}
		return err
	}
	return nil
}

func classify(err error) error {
	if de, ok := err.(*domainerrors.DomainError); ok {
		return de
	}
	return domainerrors.New(domainerrors.Infra, "unclassified error", err)
}

func isRetryable(err error) bool {
	de, ok := err.(*domainerrors.DomainError)
	if !ok {
		return true
	}
	return de.Retryable()
}

// backoffDelay implements spec.md §4.1's formula for attempt k (1-indexed):
// min(max_delay, base_delay * 2^(k-1)) * rand[0.5,1.5) when jitter is enabled.
func backoffDelay(strategy Strategy, attempt int) time.Duration {
	raw := float64(strategy.BaseDelay) * math.Pow(2, float64(attempt-1))
	capped := math.Min(float64(strategy.MaxDelay), raw)
	if !strategy.Jitter {
		return time.Duration(capped)
	}
	jitterFactor := 0.5 + rand.Float64() // [0.5, 1.5)
	return time.Duration(capped * jitterFactor)
}
