package queries

import (
	"context"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/schedulercontract"
)

// ProviderStrategy is the read-only subset of the provider strategy query
// handlers use to refresh live instance state (DESCRIBE_RESOURCE_INSTANCES,
// GET_AVAILABLE_TEMPLATES are read-only operations even though they are
// dispatched through the same Strategy.Execute entry point as mutating
// ones — spec.md §4.6 only forbids queries from *mutating local state*, not
// from reading through the provider strategy).
type ProviderStrategy interface {
	Execute(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error)
}

// GetTemplateHandler resolves a single template by id.
type GetTemplateHandler struct{ Templates template.Repository }

func (h *GetTemplateHandler) Handle(ctx context.Context, q GetTemplateQuery) (any, error) {
	return h.Templates.FindByID(ctx, q.TemplateID)
}

// GetAvailableTemplatesHandler lists every template the scheduler adapter
// exposes, via the provider strategy's GET_AVAILABLE_TEMPLATES operation.
type GetAvailableTemplatesHandler struct{ Strategy ProviderStrategy }

func (h *GetAvailableTemplatesHandler) Handle(ctx context.Context, _ GetAvailableTemplatesQuery) (any, error) {
	result, err := h.Strategy.Execute(ctx, provideroperation.Operation{Type: provideroperation.GetAvailableTemplates})
	if err != nil {
		return nil, err
	}
	templates, _ := result.Data["templates"].([]*template.Template)
	return templates, nil
}

// GetMachineHandler resolves a single machine by id.
type GetMachineHandler struct{ Machines machine.Repository }

func (h *GetMachineHandler) Handle(ctx context.Context, q GetMachineQuery) (any, error) {
	return h.Machines.FindByID(ctx, q.MachineID)
}

// GetRequestStatusHandler projects one request into the upstream status
// shape of spec.md §6, refreshing instance state through the provider
// strategy's read-only DESCRIBE_RESOURCE_INSTANCES operation when the
// request has live resources to poll.
type GetRequestStatusHandler struct {
	Requests request.Repository
	Machines machine.Repository
	Strategy ProviderStrategy
}

func (h *GetRequestStatusHandler) Handle(ctx context.Context, q GetRequestStatusQuery) (any, error) {
	req, err := h.Requests.FindByID(ctx, q.RequestID)
	if err != nil {
		return nil, err
	}
	machines, err := h.resolveMachines(ctx, req)
	if err != nil {
		return nil, err
	}
	return schedulercontract.ToRequestStatusEntry(req, machines), nil
}

func (h *GetRequestStatusHandler) resolveMachines(ctx context.Context, req *request.Request) ([]*machine.Machine, error) {
	if h.Strategy != nil && len(req.ResourceIDs) > 0 && !req.Status.Terminal() {
		result, err := h.Strategy.Execute(ctx, provideroperation.Operation{
			Type:       provideroperation.DescribeResourceInstances,
			Parameters: map[string]any{"request": req},
		})
		if err == nil {
			if machines, ok := result.Data["instances"].([]*machine.Machine); ok {
				return machines, nil
			}
		}
	}
	return h.Machines.ListByRequestID(ctx, req.ID)
}

// GetRequestStatusesHandler projects every known request, for the
// scheduler adapter's bulk status poll.
type GetRequestStatusesHandler struct {
	Single *GetRequestStatusHandler
	Requests request.Repository
}

func (h *GetRequestStatusesHandler) Handle(ctx context.Context, _ GetRequestStatusesQuery) (any, error) {
	reqs, err := h.Requests.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]schedulercontract.RequestStatusEntry, 0, len(reqs))
	for _, req := range reqs {
		machines, err := h.Single.resolveMachines(ctx, req)
		if err != nil {
			return nil, domainerrors.New(domainerrors.Infra, "resolving machines for request "+req.ID, err)
		}
		entries = append(entries, schedulercontract.ToRequestStatusEntry(req, machines))
	}
	return schedulercontract.RequestStatusResponse{Requests: entries}, nil
}
