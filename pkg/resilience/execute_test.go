package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

func TestBackoffDelayBounds(t *testing.T) {
	strategy := Strategy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: false}
	assert.Equal(t, time.Second, backoffDelay(strategy, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(strategy, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(strategy, 3))

	strategy.Jitter = true
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDelay(strategy, attempt)
		assert.LessOrEqual(t, d, strategy.MaxDelay*3/2+time.Millisecond)
	}
}

func TestExecuteRetriesOnThrottleThenSucceeds(t *testing.T) {
	executor := NewExecutor()
	calls := 0
	err := executor.Execute(context.Background(), "ec2", "run_instances", Standard, func(context.Context) error {
		calls++
		if calls < 3 {
			return domainerrors.New(domainerrors.RateLimit, "throttled", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 2)
	assert.LessOrEqual(t, calls, 3)
}

func TestExecuteDoesNotRetryValidationErrors(t *testing.T) {
	executor := NewExecutor()
	calls := 0
	err := executor.Execute(context.Background(), "ec2", "create_fleet", Standard, func(context.Context) error {
		calls++
		return domainerrors.New(domainerrors.Validation, "bad template", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, domainerrors.Is(err, domainerrors.Validation))
}

func TestCircuitOpensAfterFailureThreshold(t *testing.T) {
	executor := &Executor{Breakers: NewRegistry(BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:      time.Minute,
		HalfOpenTimeout:   time.Minute,
		HalfOpenMaxCalls:  10,
	})}
	failing := func(context.Context) error {
		return domainerrors.New(domainerrors.Infra, "boom", nil)
	}
	for i := 0; i < 5; i++ {
		_ = executor.Execute(context.Background(), "ec2", "create_fleet", Critical, failing)
	}
	assert.Equal(t, Open, executor.Breakers.State("ec2", "create_fleet"))

	calls := 0
	err := executor.Execute(context.Background(), "ec2", "create_fleet", Critical, func(context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "breaker must reject without reaching the wrapped call")
	assert.True(t, domainerrors.Is(err, domainerrors.CircuitOpen))
}
