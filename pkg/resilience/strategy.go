// Package resilience implements spec.md §4.1: typed retry with exponential
// backoff + jitter, a per-{service,operation} circuit breaker, and the
// rate-limit/throttle classification that feeds both.
package resilience

import "time"

// Strategy is a named retry configuration (spec.md §4.1 table).
type Strategy struct {
	Name              string
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            bool
	CircuitBreaker    bool
}

var (
	Critical = Strategy{
		Name:           "critical",
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Jitter:         true,
		CircuitBreaker: true,
	}
	Standard = Strategy{
		Name:           "standard",
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Jitter:         true,
		CircuitBreaker: false,
	}
	ReadOnly = Strategy{
		Name:           "read_only",
		MaxAttempts:    2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Jitter:         true,
		CircuitBreaker: false,
	}
)

// criticalOperations is the known-critical set that auto-upgrades standard -> critical.
var criticalOperations = map[string]bool{
	"create_fleet":                  true,
	"request_spot_fleet":            true,
	"create_auto_scaling_group":     true,
	"run_instances":                 true,
	"modify_fleet":                  true,
	"delete_fleets":                 true,
	"cancel_spot_fleet_requests":    true,
	"update_auto_scaling_group":     true,
	"delete_auto_scaling_group":     true,
}

// StrategyFor resolves the strategy to use for an operation name, applying the
// standard -> critical auto-upgrade rule.
func StrategyFor(op string, requested Strategy) Strategy {
	if requested.Name == Standard.Name && criticalOperations[op] {
		return Critical
	}
	return requested
}

// IsCriticalOperation reports whether op is in the known-critical set.
func IsCriticalOperation(op string) bool {
	return criticalOperations[op]
}
