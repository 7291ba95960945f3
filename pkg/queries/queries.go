// Package queries implements the read-side handlers of spec.md §4.6: pure
// lookups, no mutation, optionally projecting aggregates to smaller DTOs.
// Query handlers must not mutate state — this package declares no
// set_*/update_*/create_*/delete_*/modify_* methods (spec.md §4.6's
// separation invariant).
package queries

// GetTemplateQuery looks up a single template by id, the read side
// CreateMachineRequestHandler depends on (spec.md §4.7 step 2).
type GetTemplateQuery struct {
	TemplateID string
}

// GetAvailableTemplatesQuery lists every template the scheduler adapter
// currently exposes.
type GetAvailableTemplatesQuery struct{}

// GetRequestStatusQuery projects one request (plus its discovered machines)
// into the upstream status-response shape of spec.md §6.
type GetRequestStatusQuery struct {
	RequestID string
}

// GetRequestStatusesQuery projects every known request, for the scheduler
// adapter's bulk status poll.
type GetRequestStatusesQuery struct{}

// GetMachineQuery looks up a single machine by id.
type GetMachineQuery struct {
	MachineID string
}
