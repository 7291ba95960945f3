package template

import "context"

// Repository is the persistence port for Templates, spec.md §6. Templates
// are owned by the scheduler adapter; this control plane only caches and
// looks them up, so Save exists for the adapter's own sync path rather than
// for command handlers to create templates directly.
type Repository interface {
	Save(ctx context.Context, t *Template) error
	FindByID(ctx context.Context, id string) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
}
