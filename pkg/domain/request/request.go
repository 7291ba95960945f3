// Package request implements the Request aggregate of spec.md §3/§4.7: an
// immutable-except-via-methods state machine for a provisioning or return
// request that emits domain events.
package request

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
)

// Type is the request kind, spec.md §3.
type Type string

const (
	TypeAcquire Type = "ACQUIRE"
	TypeReturn  Type = "RETURN"
)

// Status is a node in the state machine of spec.md §4.7.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPartial    Status = "PARTIAL"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// well-known metadata keys, spec.md §3.
const (
	MetaDryRun                  = "dry_run"
	MetaProviderAPI              = "provider_api"
	MetaHandlerUsed              = "handler_used"
	MetaFleetErrors              = "fleet_errors"
	MetaErrorMessage             = "error_message"
	MetaErrorType                = "error_type"
	MetaASGCurrentCapacity       = "asg_current_capacity"
	MetaProviderSelectionReason  = "provider_selection_reason"
	MetaProviderConfidence       = "provider_confidence"
)

// FleetError is one per-instance cloud-side error surfaced for partial-success reporting.
type FleetError struct {
	InstanceType string `json:"instanceType,omitempty"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Request is the aggregate root described in spec.md §3.
type Request struct {
	ID              string
	RequestType     Type
	TemplateID      string
	RequestedCount  int
	ProviderType    string
	ProviderInstance string
	ProviderAPI     string
	Status          Status
	ResourceIDs     []string
	InstanceIDs     []string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time

	domainEvents []events.Event
}

// New constructs a PENDING acquire Request, validating spec.md's invariant
// `requested_count > 0` at construction time (boundary validation, spec.md §8).
func New(templateID string, requestedCount int) (*Request, error) {
	if requestedCount <= 0 {
		return nil, domainerrors.New(domainerrors.Validation, "requested_count must be positive", nil)
	}
	now := time.Now()
	r := &Request{
		ID:             uuid.NewString(),
		RequestType:    TypeAcquire,
		TemplateID:     templateID,
		RequestedCount: requestedCount,
		Status:         StatusPending,
		ResourceIDs:    []string{},
		InstanceIDs:    []string{},
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.record(events.RequestCreated{RequestID: r.ID, TemplateID: templateID, RequestedCount: requestedCount, At: now})
	return r, nil
}

// NewReturn constructs a PENDING return Request for the given machine ids.
func NewReturn(machineIDs []string) (*Request, error) {
	if len(machineIDs) == 0 {
		return nil, domainerrors.New(domainerrors.Validation, "machine_ids must not be empty", nil)
	}
	now := time.Now()
	r := &Request{
		ID:             uuid.NewString(),
		RequestType:    TypeReturn,
		RequestedCount: len(machineIDs),
		Status:         StatusPending,
		ResourceIDs:    []string{},
		InstanceIDs:    append([]string{}, machineIDs...),
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.record(events.RequestCreated{RequestID: r.ID, TemplateID: "", RequestedCount: len(machineIDs), At: now})
	return r, nil
}

func (r *Request) record(e events.Event) {
	r.domainEvents = append(r.domainEvents, e)
}

// PullEvents returns and clears the pending domain events; called by the Unit
// of Work after a successful save (spec.md §5 "Events are never published
// from a rolled-back UoW").
func (r *Request) PullEvents() []events.Event {
	out := r.domainEvents
	r.domainEvents = nil
	return out
}

func (r *Request) assertNotTerminal() error {
	if r.Status.Terminal() {
		return domainerrors.New(domainerrors.InvalidState,
			"request "+r.ID+" is terminal ("+string(r.Status)+")", nil)
	}
	return nil
}

// transition is the single place that mutates Status, enforcing spec.md §4.7.
func (r *Request) transition(to Status, message string) error {
	if err := r.assertNotTerminal(); err != nil {
		return err
	}
	if !allowed(r.Status, to) {
		return domainerrors.New(domainerrors.InvalidState,
			"illegal transition "+string(r.Status)+" -> "+string(to), nil)
	}
	from := r.Status
	r.Status = to
	r.UpdatedAt = time.Now()
	if to.Terminal() {
		now := time.Now()
		r.CompletedAt = &now
	}
	if to == StatusCompleted {
		r.record(events.RequestCompleted{RequestID: r.ID, At: r.UpdatedAt})
	} else {
		r.record(events.RequestStatusChanged{RequestID: r.ID, From: from, To: to, Message: message, At: r.UpdatedAt})
	}
	return nil
}

func allowed(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusPartial || to == StatusFailed
	default:
		return false
	}
}

// MarkDispatched moves PENDING -> IN_PROGRESS on first successful provider dispatch.
func (r *Request) MarkDispatched() error {
	return r.transition(StatusInProgress, "dispatched to provider")
}

// StampProvider records provider provenance on the aggregate, per spec.md §3.
func (r *Request) StampProvider(providerType, providerInstance, providerAPI, reason string, confidence float64) {
	r.ProviderType = providerType
	r.ProviderInstance = providerInstance
	r.ProviderAPI = providerAPI
	r.Metadata[MetaProviderAPI] = providerAPI
	r.Metadata[MetaProviderSelectionReason] = reason
	r.Metadata[MetaProviderConfidence] = confidence
	r.UpdatedAt = time.Now()
}

// AppendResourceIDs appends to the append-only resource_ids sequence.
func (r *Request) AppendResourceIDs(ids ...string) {
	r.ResourceIDs = append(r.ResourceIDs, ids...)
	r.UpdatedAt = time.Now()
}

// AppendInstanceIDs appends to the append-only instance_ids sequence.
func (r *Request) AppendInstanceIDs(ids ...string) {
	r.InstanceIDs = append(r.InstanceIDs, ids...)
	r.UpdatedAt = time.Now()
}

// SetFleetErrors stores partial-failure details, per spec.md §3/§7.
func (r *Request) SetFleetErrors(errs []FleetError) {
	if len(errs) == 0 {
		delete(r.Metadata, MetaFleetErrors)
		return
	}
	r.Metadata[MetaFleetErrors] = errs
}

func (r *Request) fleetErrors() []FleetError {
	v, ok := r.Metadata[MetaFleetErrors]
	if !ok {
		return nil
	}
	errs, _ := v.([]FleetError)
	return errs
}

// SetErrorSummary records a human-readable failure summary, per spec.md §7.
func (r *Request) SetErrorSummary(errType, message string) {
	r.Metadata[MetaErrorType] = errType
	r.Metadata[MetaErrorMessage] = message
}

// ResolveStatus computes and applies the next status from discovered instance
// counts and fleet errors, implementing the transition table of spec.md §4.7
// and the invariants of spec.md §8.
func (r *Request) ResolveStatus(discoveredInstances int, message string) error {
	fleetErrs := len(r.fleetErrors())
	switch {
	case discoveredInstances == r.RequestedCount && fleetErrs == 0:
		return r.transition(StatusCompleted, message)
	case discoveredInstances > 0 && discoveredInstances < r.RequestedCount:
		return r.transition(StatusPartial, message)
	case discoveredInstances == r.RequestedCount && fleetErrs > 0:
		return r.transition(StatusPartial, message)
	case discoveredInstances == 0:
		return r.transition(StatusFailed, message)
	default:
		return r.transition(StatusPartial, message)
	}
}

// MarkFailed transitions IN_PROGRESS (or PENDING) -> FAILED with an error summary.
func (r *Request) MarkFailed(errType, message string) error {
	r.SetErrorSummary(errType, message)
	if r.Status == StatusPending {
		if err := r.transition(StatusInProgress, "dispatch attempted"); err != nil {
			return err
		}
	}
	return r.transition(StatusFailed, message)
}

// MarkCompletedDryRun marks a dry-run request COMPLETED directly, per spec.md §4.7 step 6.
func (r *Request) MarkCompletedDryRun() error {
	r.Metadata[MetaDryRun] = true
	if err := r.transition(StatusInProgress, "dry-run"); err != nil {
		return err
	}
	return r.transition(StatusCompleted, "dry-run: no cloud calls issued")
}

// Cancel transitions any non-terminal request to CANCELLED, per spec.md §4.7/§5.
func (r *Request) Cancel(reason string) error {
	if err := r.assertNotTerminal(); err != nil {
		return err
	}
	return r.transition(StatusCancelled, reason)
}

// IsDryRun reports whether metadata.dry_run is true.
func (r *Request) IsDryRun() bool {
	v, ok := r.Metadata[MetaDryRun]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
