// Package cqrs implements the two pure routing buses of spec.md §4.6: no
// middleware, handler lookup by the dynamic type of the command/query.
// Grounded on the original's `infrastructure.di.buses.CommandBus`/`QueryBus`
// (reflection-free registry keyed by type, `execute(cmd)` resolving and
// invoking a single handler) — reimplemented here with Go's `reflect.Type`
// as the map key in place of Python's class-object identity.
package cqrs

import (
	"context"
	"fmt"
	"reflect"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

// CommandHandler handles exactly one command type and returns its result.
type CommandHandler func(ctx context.Context, cmd any) (any, error)

// QueryHandler handles exactly one query type and returns its result.
// Query handlers must not mutate state (spec.md §4.6's separation invariant,
// enforced by convention; no test checks it).
type QueryHandler func(ctx context.Context, q any) (any, error)

// CommandBus routes a command value to the handler registered for its
// concrete type. Unknown command type is a fatal programming error, per
// spec.md §4.6 ("Unknown command type → fatal key error").
type CommandBus struct {
	handlers map[reflect.Type]CommandHandler
}

func NewCommandBus() *CommandBus {
	return &CommandBus{handlers: map[reflect.Type]CommandHandler{}}
}

// Register binds the handler for command type T. Call once per command type
// during wiring; a second registration for the same type overwrites silently,
// mirroring the original's container-resolution semantics (the container
// wiring would already prevent a second registration in practice).
func Register[C any](bus *CommandBus, handler func(ctx context.Context, cmd C) (any, error)) {
	t := reflect.TypeOf(*new(C))
	bus.handlers[t] = func(ctx context.Context, cmd any) (any, error) {
		return handler(ctx, cmd.(C))
	}
}

func (b *CommandBus) Execute(ctx context.Context, cmd any) (any, error) {
	t := reflect.TypeOf(cmd)
	handler, ok := b.handlers[t]
	if !ok {
		return nil, domainerrors.New(domainerrors.Configuration, fmt.Sprintf("no command handler registered for %s", t), nil)
	}
	return handler(ctx, cmd)
}

// QueryBus routes a query value to the handler registered for its concrete
// type, identical routing discipline to CommandBus.
type QueryBus struct {
	handlers map[reflect.Type]QueryHandler
}

func NewQueryBus() *QueryBus {
	return &QueryBus{handlers: map[reflect.Type]QueryHandler{}}
}

func RegisterQuery[Q any](bus *QueryBus, handler func(ctx context.Context, q Q) (any, error)) {
	t := reflect.TypeOf(*new(Q))
	bus.handlers[t] = func(ctx context.Context, q any) (any, error) {
		return handler(ctx, q.(Q))
	}
}

func (b *QueryBus) Execute(ctx context.Context, q any) (any, error) {
	t := reflect.TypeOf(q)
	handler, ok := b.handlers[t]
	if !ok {
		return nil, domainerrors.New(domainerrors.Configuration, fmt.Sprintf("no query handler registered for %s", t), nil)
	}
	return handler(ctx, q)
}
