// Package events implements the domain event publisher of spec.md §4
// ("Domain event publisher" — hand events from aggregates to subscribers),
// generalised from the teacher's pkg/events/events.go (which built
// Kubernetes-recorder Event values for pods/nodes) into provider-neutral
// domain events for Request/Machine lifecycle transitions.
package events

import (
	"context"
	"reflect"
	"sync"

	"github.com/awslabs/host-factory-controlplane/pkg/log"
)

// Event is a marker interface implemented by every domain event type.
type Event interface {
	EventName() string
}

// Handler receives published events of a single registered type.
type Handler func(ctx context.Context, e Event)

// Publisher hands events from aggregates to subscribers. It is a process-wide
// singleton, constructed once and threaded through via an explicit handle
// rather than package-level state (spec.md §9's replacement for the source's
// global mutable state).
type Publisher struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]Handler
}

// NewPublisher constructs an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{handlers: map[reflect.Type][]Handler{}}
}

// Subscribe registers handler for every event of the same concrete type as T.
func Subscribe[T Event](p *Publisher, handler func(ctx context.Context, e T)) {
	t := reflect.TypeOf(*new(T))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = append(p.handlers[t], func(ctx context.Context, e Event) {
		handler(ctx, e.(T))
	})
}

// Publish delivers each event to every subscriber registered for its concrete
// type. Publish must only be called after a Unit of Work has committed
// successfully (spec.md §5: "Events are never published from a rolled-back UoW").
func (p *Publisher) Publish(ctx context.Context, evts ...Event) {
	logger := log.FromContext(ctx)
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range evts {
		t := reflect.TypeOf(e)
		for _, h := range p.handlers[t] {
			logger.Debugw("publishing domain event", "event", e.EventName())
			h(ctx, e)
		}
	}
}
