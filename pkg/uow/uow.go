// Package uow implements the Unit of Work boundary spec.md §5 describes:
// begin → mutate → save (collect events) → commit → publish events. A unit
// that fails before Commit publishes nothing; repository writes already made
// through it are not rolled back.
package uow

import (
	"context"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
)

// EventSource is satisfied by any aggregate that records domain events for
// later extraction, e.g. *request.Request.
type EventSource interface {
	PullEvents() []events.Event
}

// UnitOfWork scopes one aggregate mutation: repositories reachable within it
// commit together, and its collected events publish only after a successful
// commit. Grounded on the original's `uow_factory.create_unit_of_work()`
// context-manager pattern (see DESIGN.md), expressed here as an explicit
// Begin/mutate/Commit sequence rather than Python's `with` block, since Go
// has no equivalent context-manager sugar to lean on.
type UnitOfWork struct {
	Requests  request.Repository
	Machines  machine.Repository
	Templates template.Repository

	publisher *events.Publisher
	collected []events.Event
	committed bool
}

// Factory constructs a UnitOfWork bound to a fixed set of repositories and
// publisher, mirroring the original's `UnitOfWorkFactory`.
type Factory struct {
	Requests  request.Repository
	Machines  machine.Repository
	Templates template.Repository
	Publisher *events.Publisher
}

func NewFactory(requests request.Repository, machines machine.Repository, templates template.Repository, publisher *events.Publisher) *Factory {
	return &Factory{Requests: requests, Machines: machines, Templates: templates, Publisher: publisher}
}

func (f *Factory) New() *UnitOfWork {
	return &UnitOfWork{Requests: f.Requests, Machines: f.Machines, Templates: f.Templates, publisher: f.Publisher}
}

// Collect records the aggregate's pending events for publication at Commit
// time. Call this once per mutated aggregate before Commit.
func (u *UnitOfWork) Collect(src EventSource) {
	u.collected = append(u.collected, src.PullEvents()...)
}

// Record adds one or more ad hoc events directly, for aggregates like
// Machine that don't record their own domain events (spec.md §4.7 step 9
// emits a MachineDiscovered event per instance without the Machine aggregate
// itself tracking it).
func (u *UnitOfWork) Record(evts ...events.Event) {
	u.collected = append(u.collected, evts...)
}

// Commit marks the unit as successfully saved and publishes every collected
// event. Must be the last call in the unit's lifetime; a unit that errors
// before Commit is abandoned (its mutations were already persisted by the
// repository calls made against it, but no events reach subscribers — the
// caller is responsible for not calling Commit on a failed path).
func (u *UnitOfWork) Commit(ctx context.Context) {
	u.committed = true
	if u.publisher != nil && len(u.collected) > 0 {
		u.publisher.Publish(ctx, u.collected...)
	}
}

// Committed reports whether Commit has run, for tests asserting that a
// failed handler path never reaches publication.
func (u *UnitOfWork) Committed() bool { return u.committed }

// Run executes fn within a fresh unit of work, committing (and publishing)
// only if fn returns no error; callers that need to collect events from
// multiple aggregates within the same unit should call Collect on u inside
// fn before returning.
func (f *Factory) Run(ctx context.Context, fn func(u *UnitOfWork) error) error {
	u := f.New()
	if err := fn(u); err != nil {
		return err
	}
	u.Commit(ctx)
	return nil
}
