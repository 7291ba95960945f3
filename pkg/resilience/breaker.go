package resilience

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

// CircuitState is one of {closed, open, half_open} per spec.md §3/§4.1.
type CircuitState string

const (
	Closed   CircuitState = "closed"
	Open     CircuitState = "open"
	HalfOpen CircuitState = "half_open"
)

// BreakerConfig configures a single {service,operation} breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenTimeout  time.Duration
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig matches spec.md §4.1's defaults.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	ResetTimeout:     60 * time.Second,
	HalfOpenTimeout:  60 * time.Second,
	HalfOpenMaxCalls: 10,
}

type breakerState struct {
	mu               sync.Mutex
	state            CircuitState
	failureCount     int
	openedAt         time.Time
	halfOpenInFlight int
}

// Registry holds one breakerState per {service,operation}, backed by an
// in-process cache the way the teacher uses github.com/patrickmn/go-cache
// for its launch-template lookups — entries never expire here since breaker
// state must survive for the life of the process.
type Registry struct {
	cache  *gocache.Cache
	config BreakerConfig
	mu     sync.Mutex
}

// NewRegistry builds a breaker registry with the given config applied to every key.
func NewRegistry(config BreakerConfig) *Registry {
	return &Registry{
		cache:  gocache.New(gocache.NoExpiration, gocache.NoExpiration),
		config: config,
	}
}

func key(service, operation string) string {
	return service + ":" + operation
}

func (r *Registry) stateFor(service, operation string) *breakerState {
	k := key(service, operation)
	if v, ok := r.cache.Get(k); ok {
		return v.(*breakerState)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache.Get(k); ok {
		return v.(*breakerState)
	}
	st := &breakerState{state: Closed}
	r.cache.Set(k, st, gocache.NoExpiration)
	return st
}

// circuitOpenErr builds the CircuitOpen *errors.DomainError returned when a
// call is rejected without reaching the SDK because the breaker is OPEN.
func circuitOpenErr(service, operation string) error {
	return domainerrors.New(domainerrors.CircuitOpen,
		fmt.Sprintf("circuit open for %s/%s", service, operation), nil)
}

// Allow decides whether a call for {service, operation} may proceed right now,
// transitioning OPEN -> HALF_OPEN when the reset timeout has elapsed.
func (r *Registry) Allow(service, operation string) error {
	st := r.stateFor(service, operation)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.state {
	case Closed:
		return nil
	case Open:
		if time.Since(st.openedAt) >= r.config.ResetTimeout {
			st.state = HalfOpen
			st.halfOpenInFlight = 0
			// fall through to half-open admission below
		} else {
			return circuitOpenErr(service, operation)
		}
		fallthrough
	case HalfOpen:
		if st.halfOpenInFlight >= r.config.HalfOpenMaxCalls {
			return circuitOpenErr(service, operation)
		}
		st.halfOpenInFlight++
		return nil
	default:
		return nil
	}
}

// ReportSuccess records a successful call, resetting the breaker to CLOSED.
func (r *Registry) ReportSuccess(service, operation string) {
	st := r.stateFor(service, operation)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = Closed
	st.failureCount = 0
	st.halfOpenInFlight = 0
}

// ReportFailure records a failed call. In CLOSED state the failure count is
// incremented and the breaker trips to OPEN once it reaches the threshold; in
// HALF_OPEN any failure re-opens the breaker immediately and resets the timer.
func (r *Registry) ReportFailure(service, operation string) {
	st := r.stateFor(service, operation)
	st.mu.Lock()
	defer st.mu.Unlock()
	switch st.state {
	case HalfOpen:
		st.state = Open
		st.openedAt = time.Now()
		st.failureCount = r.config.FailureThreshold
		st.halfOpenInFlight = 0
	default:
		st.failureCount++
		if st.failureCount >= r.config.FailureThreshold {
			st.state = Open
			st.openedAt = time.Now()
		}
	}
}

// State returns the current state for {service, operation}, mainly for observability/tests.
func (r *Registry) State(service, operation string) CircuitState {
	st := r.stateFor(service, operation)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
