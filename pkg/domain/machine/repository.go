package machine

import "context"

// Repository is the persistence port for Machine aggregates, spec.md §6.
type Repository interface {
	Save(ctx context.Context, m *Machine) error
	FindByID(ctx context.Context, id string) (*Machine, error)
	ListByRequestID(ctx context.Context, requestID string) ([]*Machine, error)
	List(ctx context.Context) ([]*Machine, error)
}
