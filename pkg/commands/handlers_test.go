package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/host-factory-controlplane/pkg/cqrs"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
	"github.com/awslabs/host-factory-controlplane/pkg/providerselect"
	"github.com/awslabs/host-factory-controlplane/pkg/queries"
	"github.com/awslabs/host-factory-controlplane/pkg/repository"
	"github.com/awslabs/host-factory-controlplane/pkg/uow"
)

// fakeStrategy is a minimal ProviderStrategy double: a function per test
// supplies the Result/error for whatever Operation.Type the handler sends.
type fakeStrategy struct {
	onExecute func(op provideroperation.Operation) (*provideroperation.Result, error)
}

func (f *fakeStrategy) Execute(_ context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	return f.onExecute(op)
}

func newHarness(t *testing.T) (*uow.Factory, *cqrs.QueryBus, *providerselect.Selector, *providerselect.CapabilityValidator) {
	t.Helper()
	requests := repository.NewInMemoryRequests()
	machines := repository.NewInMemoryMachines()
	templates := repository.NewInMemoryTemplates()
	publisher := events.NewPublisher()
	uowFactory := uow.NewFactory(requests, machines, templates, publisher)

	queryBus := cqrs.NewQueryBus()
	cqrs.RegisterQuery(queryBus, (&queries.GetTemplateHandler{Templates: templates}).Handle)

	registry := providerselect.NewRegistry(providerselect.NewInstance("default", "aws", 0, 1, []string{"RunInstances"}))
	selector := providerselect.NewSelector(registry, providerselect.PolicyRoundRobin)
	validator := providerselect.NewCapabilityValidator(nil)

	tmpl := &template.Template{
		TemplateID:       "tmpl-1",
		ImageID:          "ami-0123456789abcdef0",
		InstanceType:     "m5.large",
		SubnetIDs:        []string{"subnet-1"},
		SecurityGroupIDs: []string{"sg-1"},
		ProviderAPI:      template.APIRunInstances,
	}
	require.NoError(t, templates.Save(context.Background(), tmpl))

	return uowFactory, queryBus, selector, validator
}

func TestCreateMachineRequestHandlerHappyPath(t *testing.T) {
	strategy := &fakeStrategy{onExecute: func(op provideroperation.Operation) (*provideroperation.Result, error) {
		require.Equal(t, provideroperation.CreateInstances, op.Type)
		return &provideroperation.Result{
			Success: true,
			Data: map[string]any{
				"resource_ids": []string{"fleet-1"},
				"instances": []*machine.Machine{
					machine.New("i-1", "", "", "aws"),
					machine.New("i-2", "", "", "aws"),
				},
			},
		}, nil
	}}
	uowFactory, queryBus, selector, validator := newHarness(t)

	h := &CreateMachineRequestHandler{UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: validator, Strategy: strategy}
	result, err := h.Handle(context.Background(), CreateMachineRequestCommand{TemplateID: "tmpl-1", RequestedCount: 2})
	require.NoError(t, err)

	requestID, ok := result.(string)
	require.True(t, ok)

	saved, err := uowFactory.Requests.FindByID(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, saved.Status)
	assert.Equal(t, []string{"i-1", "i-2"}, saved.InstanceIDs)
	assert.Equal(t, []string{"fleet-1"}, saved.ResourceIDs)
}

func TestCreateMachineRequestHandlerRejectsMissingTemplateID(t *testing.T) {
	uowFactory, queryBus, selector, validator := newHarness(t)
	h := &CreateMachineRequestHandler{UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: validator, Strategy: &fakeStrategy{}}

	_, err := h.Handle(context.Background(), CreateMachineRequestCommand{RequestedCount: 1})
	require.Error(t, err)
}

func TestCreateMachineRequestHandlerDryRunNeverCallsStrategy(t *testing.T) {
	called := false
	strategy := &fakeStrategy{onExecute: func(op provideroperation.Operation) (*provideroperation.Result, error) {
		called = true
		return &provideroperation.Result{Success: true}, nil
	}}
	uowFactory, queryBus, selector, validator := newHarness(t)
	h := &CreateMachineRequestHandler{UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: validator, Strategy: strategy}

	result, err := h.Handle(context.Background(), CreateMachineRequestCommand{TemplateID: "tmpl-1", RequestedCount: 1, DryRun: true})
	require.NoError(t, err)
	assert.False(t, called)

	saved, err := uowFactory.Requests.FindByID(context.Background(), result.(string))
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, saved.Status)
	assert.True(t, saved.IsDryRun())
}

func TestCreateMachineRequestHandlerPartialWhenFewerInstancesDiscovered(t *testing.T) {
	strategy := &fakeStrategy{onExecute: func(op provideroperation.Operation) (*provideroperation.Result, error) {
		return &provideroperation.Result{
			Success: true,
			Data: map[string]any{
				"instances": []*machine.Machine{machine.New("i-1", "", "", "aws")},
			},
		}, nil
	}}
	uowFactory, queryBus, selector, validator := newHarness(t)
	h := &CreateMachineRequestHandler{UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: validator, Strategy: strategy}

	result, err := h.Handle(context.Background(), CreateMachineRequestCommand{TemplateID: "tmpl-1", RequestedCount: 3})
	require.NoError(t, err)

	saved, err := uowFactory.Requests.FindByID(context.Background(), result.(string))
	require.NoError(t, err)
	assert.Equal(t, request.StatusPartial, saved.Status)
}

func TestCreateMachineRequestHandlerProvisioningErrorMarksFailed(t *testing.T) {
	strategy := &fakeStrategy{onExecute: func(op provideroperation.Operation) (*provideroperation.Result, error) {
		return nil, assert.AnError
	}}
	uowFactory, queryBus, selector, validator := newHarness(t)
	h := &CreateMachineRequestHandler{UoW: uowFactory, QueryBus: queryBus, Selector: selector, Capability: validator, Strategy: strategy}

	_, err := h.Handle(context.Background(), CreateMachineRequestCommand{TemplateID: "tmpl-1", RequestedCount: 1})
	require.Error(t, err)

	reqs, err := uowFactory.Requests.List(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, request.StatusFailed, reqs[0].Status)
}

func TestCreateReturnRequestHandlerGroupsByTemplateAndCompletes(t *testing.T) {
	requests := repository.NewInMemoryRequests()
	machines := repository.NewInMemoryMachines()
	templates := repository.NewInMemoryTemplates()
	publisher := events.NewPublisher()
	uowFactory := uow.NewFactory(requests, machines, templates, publisher)

	owner, err := request.New("tmpl-1", 2)
	require.NoError(t, err)
	owner.AppendResourceIDs("fleet-1")
	require.NoError(t, uowFactory.Requests.Save(context.Background(), owner))

	m1 := machine.New("i-1", owner.ID, "tmpl-1", "aws")
	m2 := machine.New("i-2", owner.ID, "tmpl-1", "aws")
	require.NoError(t, uowFactory.Machines.Save(context.Background(), m1))
	require.NoError(t, uowFactory.Machines.Save(context.Background(), m2))

	strategy := &fakeStrategy{onExecute: func(op provideroperation.Operation) (*provideroperation.Result, error) {
		require.Equal(t, provideroperation.TerminateInstances, op.Type)
		return &provideroperation.Result{Success: true}, nil
	}}

	h := &CreateReturnRequestHandler{UoW: uowFactory, Strategy: strategy}
	result, err := h.Handle(context.Background(), CreateReturnRequestCommand{MachineIDs: []string{"i-1", "i-2"}})
	require.NoError(t, err)

	returned, err := uowFactory.Requests.FindByID(context.Background(), result.(string))
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, returned.Status)
}

func TestCreateReturnRequestHandlerRejectsEmptyMachineIDs(t *testing.T) {
	uowFactory, _, _, _ := newHarness(t)
	h := &CreateReturnRequestHandler{UoW: uowFactory, Strategy: &fakeStrategy{}}

	_, err := h.Handle(context.Background(), CreateReturnRequestCommand{})
	require.Error(t, err)
}

func TestCancelRequestHandlerTransitionsToCancelled(t *testing.T) {
	uowFactory, _, _, _ := newHarness(t)
	req, err := request.New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, uowFactory.Requests.Save(context.Background(), req))

	h := &CancelRequestHandler{UoW: uowFactory}
	_, err = h.Handle(context.Background(), CancelRequestCommand{RequestID: req.ID, Reason: "operator"})
	require.NoError(t, err)

	saved, err := uowFactory.Requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCancelled, saved.Status)
}

func TestUpdateRequestStatusHandlerAppliesTransitionTable(t *testing.T) {
	uowFactory, _, _, _ := newHarness(t)
	req, err := request.New("tmpl-1", 2)
	require.NoError(t, err)
	require.NoError(t, req.MarkDispatched())
	require.NoError(t, uowFactory.Requests.Save(context.Background(), req))

	h := &UpdateRequestStatusHandler{UoW: uowFactory}
	_, err = h.Handle(context.Background(), UpdateRequestStatusCommand{RequestID: req.ID, DiscoveredInstances: 2, Message: "done"})
	require.NoError(t, err)

	saved, err := uowFactory.Requests.FindByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, saved.Status)
}
