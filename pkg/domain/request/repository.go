package request

import "context"

// Repository is the persistence port for Request aggregates, spec.md §6's
// "pluggable repositories" requirement — JSON-file and relational backends
// both satisfy this same port. Grounded on the original's
// `domain.request.repository.RequestRepository` (see DESIGN.md).
type Repository interface {
	Save(ctx context.Context, r *Request) error
	FindByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context) ([]*Request, error)
}
