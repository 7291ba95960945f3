package providerselect

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
)

// HealthChecker issues the HEALTH_CHECK provider operation, the same
// interface pkg/providerstrategy.Strategy.Execute exposes.
type HealthChecker interface {
	Execute(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error)
}

// HealthLoop drives Instance.SetHealthy off a ticker, per spec.md §6's
// provider.health_check_interval config and the STS-backed HEALTH_CHECK
// operation built in pkg/providerstrategy.
type HealthLoop struct {
	registry *Registry
	checkers map[string]HealthChecker // by Instance.Name
	interval time.Duration
	limiter  *rate.Limiter
}

// NewHealthLoop builds a loop that probes each registered instance's
// checker no more often than one per interval, rate limited so a large
// registry doesn't burst STS calls all at once.
func NewHealthLoop(registry *Registry, checkers map[string]HealthChecker, interval time.Duration) *HealthLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthLoop{
		registry: registry,
		checkers: checkers,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval/time.Duration(max(1, len(checkers)))), 1),
	}
}

// Run blocks, probing every registered instance once per tick, until ctx is
// cancelled. Intended to be launched in its own goroutine by cmd/controlplane.
func (l *HealthLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.probeAll(ctx)
		}
	}
}

func (l *HealthLoop) probeAll(ctx context.Context) {
	for _, inst := range l.registry.All() {
		checker, ok := l.checkers[inst.Name]
		if !ok {
			continue
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return
		}
		l.probeOne(ctx, inst, checker)
	}
}

func (l *HealthLoop) probeOne(ctx context.Context, inst *Instance, checker HealthChecker) {
	result, err := checker.Execute(ctx, provideroperation.Operation{Type: provideroperation.HealthCheck})
	healthy := err == nil && result != nil && result.Success
	if !healthy {
		log.FromContext(ctx).Warnw("provider instance health probe failed", "instance", inst.Name, "error", err)
	}
	inst.SetHealthy(healthy)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
