package events

import "time"

// RequestCreated is emitted when a Request aggregate is constructed.
type RequestCreated struct {
	RequestID      string
	TemplateID     string
	RequestedCount int
	At             time.Time
}

func (RequestCreated) EventName() string { return "RequestCreated" }

// RequestStatusChanged is emitted on every state-machine transition except
// the one into COMPLETED, which emits RequestCompleted instead (spec.md §4.7).
type RequestStatusChanged struct {
	RequestID string
	From      any
	To        any
	Message   string
	At        time.Time
}

func (RequestStatusChanged) EventName() string { return "RequestStatusChanged" }

// RequestCompleted is emitted in place of RequestStatusChanged when a
// request reaches COMPLETED, so a full acquire yields one RequestCreated,
// one RequestStatusChanged (to IN_PROGRESS) and one RequestCompleted.
type RequestCompleted struct {
	RequestID string
	At        time.Time
}

func (RequestCompleted) EventName() string { return "RequestCompleted" }

// MachineDiscovered is emitted once per Machine aggregate created while
// processing a CreateMachineRequest.
type MachineDiscovered struct {
	RequestID string
	MachineID string
	At        time.Time
}

func (MachineDiscovered) EventName() string { return "MachineDiscovered" }
