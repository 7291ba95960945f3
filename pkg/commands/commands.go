// Package commands implements the write-side handlers of spec.md §4.7:
// CreateMachineRequest, CreateReturnRequest, UpdateStatus, Cancel, Complete.
// Every handler opens a Unit of Work, mutates state, collects events, and
// publishes only after a successful commit (spec.md §4.6's command-handler
// rule). Grounded on the original's
// `application/commands/request_handlers.py` orchestration steps (see
// DESIGN.md), reshaped into the teacher's plain-struct, explicit-dependency
// constructor idiom (no DI container).
package commands

// Commands declare no get_* accessors (spec.md §4.6's separation
// invariant) — each is a flat, write-only intent payload.

// CreateMachineRequestCommand is the write intent behind spec.md §4.7's
// CreateMachineRequestHandler.
type CreateMachineRequestCommand struct {
	RequestID      string // optional; empty lets the aggregate generate one
	TemplateID     string
	RequestedCount int
	DryRun         bool
	Metadata       map[string]any
}

// CreateReturnRequestCommand is the write intent behind
// CreateReturnRequestHandler.
type CreateReturnRequestCommand struct {
	MachineIDs []string
}

// UpdateRequestStatusCommand recomputes a request's status from freshly
// discovered instances, per spec.md §4.7's transition table.
type UpdateRequestStatusCommand struct {
	RequestID           string
	DiscoveredInstances int
	Message             string
}

// CancelRequestCommand transitions a non-terminal request to CANCELLED.
type CancelRequestCommand struct {
	RequestID string
	Reason    string
}

// CompleteRequestCommand force-completes a request (used by a scheduler
// adapter confirming out-of-band completion).
type CompleteRequestCommand struct {
	RequestID string
	Message   string
}
