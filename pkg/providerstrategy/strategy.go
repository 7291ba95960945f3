// Package providerstrategy implements spec.md §4.5: the single dispatch
// entry point a command/query handler calls with a provideroperation.Operation,
// routing to the right provider handler (or the provisioning adapter, where
// one is registered) by operation type.
package providerstrategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
	"github.com/awslabs/host-factory-controlplane/pkg/providerhandler"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// well-known Operation.Parameters keys.
const (
	ParamRequest         = "request"
	ParamTemplate        = "template"
	ParamInstanceIDs     = "instance_ids"
	ParamResourceMapping = "resource_mapping"
)

// well-known Result.Data keys.
const (
	DataInstances   = "instances"
	DataResourceIDs = "resource_ids"
	DataFleetErrors = "fleet_errors"
	DataReport      = "release_report"
	DataValidation  = "validation"
	DataTemplates   = "templates"
	DataCapacity    = "capacity"
)

// ProvisioningAdapter is the only component permitted to drive handler
// orchestration for CREATE_INSTANCES/TERMINATE_INSTANCES, per spec.md §4.5.
type ProvisioningAdapter interface {
	CreateInstances(ctx context.Context, req *request.Request, tmpl *template.Template) (*providerhandler.AcquireResult, error)
	ReleaseInstances(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*providerhandler.ReleaseReport, error)
}

// TemplateSource is the scheduler adapter's GET_AVAILABLE_TEMPLATES hook.
type TemplateSource interface {
	AvailableTemplates(ctx context.Context) ([]*template.Template, error)
}

// defaultAdapter wires the four concrete handlers + release coordinator
// directly, selecting by template.ProviderAPI. This is what Strategy
// constructs by default via New; a caller may substitute a different
// ProvisioningAdapter (e.g. in tests, or a future multi-provider router).
type defaultAdapter struct {
	handlers    map[template.ProviderAPI]providerhandler.Handler
	coordinator *providerhandler.ReleaseCoordinator
}

func newDefaultAdapter(c providerhandler.Common) *defaultAdapter {
	return &defaultAdapter{
		handlers: map[template.ProviderAPI]providerhandler.Handler{
			template.APIRunInstances: providerhandler.NewRunInstancesHandler(c),
			template.APIEC2Fleet:     providerhandler.NewEC2FleetHandler(c),
			template.APISpotFleet:    providerhandler.NewSpotFleetHandler(c),
			template.APIASG:          providerhandler.NewASGHandler(c),
		},
		coordinator: providerhandler.NewReleaseCoordinator(c),
	}
}

func (a *defaultAdapter) handlerFor(ctx context.Context, api template.ProviderAPI) providerhandler.Handler {
	if h, ok := a.handlers[api]; ok {
		return h
	}
	log.FromContext(ctx).Warnw("unknown provider_api, falling back to RunInstances", "provider_api", api)
	return a.handlers[template.APIRunInstances]
}

func (a *defaultAdapter) CreateInstances(ctx context.Context, req *request.Request, tmpl *template.Template) (*providerhandler.AcquireResult, error) {
	return a.handlerFor(ctx, tmpl.ProviderAPI).Acquire(ctx, req, tmpl)
}

func (a *defaultAdapter) ReleaseInstances(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*providerhandler.ReleaseReport, error) {
	return a.coordinator.Release(ctx, instanceIDs, mapping)
}

// builtinTemplates is the fallback list of spec.md §4.5's GET_AVAILABLE_TEMPLATES.
var builtinTemplates = []*template.Template{}

const healthCheckTimeout = 10 * time.Second

// Strategy is the single dispatch entry point of spec.md §4.5. Construction
// builds nothing; Initialize() (called by Execute on first use) constructs
// the cloud client and default adapter, matching the teacher's own
// lazy-client convention.
type Strategy struct {
	mu           sync.Mutex
	region       string
	client       *cloudclient.Client
	executor     *resilience.Executor
	ltPolicy     launchtemplate.Policy
	adapter      ProvisioningAdapter
	templates    TemplateSource
	initialized  bool
}

// New constructs a Strategy that lazily builds its own cloud client, launch
// template manager, and default provisioning adapter on first Initialize.
func New(region string, executor *resilience.Executor, ltPolicy launchtemplate.Policy, templates TemplateSource) *Strategy {
	return &Strategy{region: region, executor: executor, ltPolicy: ltPolicy, templates: templates}
}

// NewWithAdapter injects a pre-built client + adapter, letting tests swap in
// a fake AWS client (pkg/cloudprovidertest) without touching real AWS.
func NewWithAdapter(client *cloudclient.Client, executor *resilience.Executor, adapter ProvisioningAdapter) *Strategy {
	return &Strategy{client: client, executor: executor, adapter: adapter, initialized: true}
}

// Initialize lazily constructs the cloud client and default adapter, per
// spec.md §4.5's "client, managers, and handlers are created on first need".
func (s *Strategy) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if s.client == nil {
		client, err := cloudclient.New(s.region)
		if err != nil {
			return domainerrors.New(domainerrors.Infra, "constructing cloud client", err)
		}
		s.client = client
	}
	if s.adapter == nil {
		ltManager := launchtemplate.NewManager(s.client, s.executor, s.ltPolicy)
		common := providerhandler.Common{Client: s.client, Executor: s.executor, LT: ltManager}
		s.adapter = newDefaultAdapter(common)
	}
	s.initialized = true
	return nil
}

// Cleanup releases the client and forces re-initialization, per spec.md §4.5.
func (s *Strategy) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.adapter = nil
	s.initialized = false
}

// Execute routes op by its Type, per spec.md §4.5.
func (s *Strategy) Execute(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	if err := s.Initialize(); err != nil {
		return nil, err
	}

	switch op.Type {
	case provideroperation.CreateInstances:
		return s.createInstances(ctx, op)
	case provideroperation.TerminateInstances:
		return s.terminateInstances(ctx, op)
	case provideroperation.GetInstanceStatus:
		return s.getInstanceStatus(ctx, op)
	case provideroperation.DescribeResourceInstances:
		return s.describeResourceInstances(ctx, op)
	case provideroperation.ValidateTemplate:
		return s.validateTemplate(ctx, op)
	case provideroperation.GetAvailableTemplates:
		return s.getAvailableTemplates(ctx, op)
	case provideroperation.HealthCheck:
		return s.healthCheck(ctx, op)
	default:
		return nil, domainerrors.New(domainerrors.Validation, fmt.Sprintf("unknown operation type %q", op.Type), nil)
	}
}

func (s *Strategy) createInstances(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	if op.Context.DryRun {
		return &provideroperation.Result{Success: true, Data: map[string]any{DataResourceIDs: []string{}}}, nil
	}
	if s.adapter == nil {
		return nil, domainerrors.New(domainerrors.Configuration, "no provisioning adapter configured for CREATE_INSTANCES", nil)
	}
	req, tmpl, err := extractRequestTemplate(op)
	if err != nil {
		return nil, err
	}
	result, err := s.adapter.CreateInstances(ctx, req, tmpl)
	if err != nil {
		return nil, err
	}
	return &provideroperation.Result{
		Success: result.Success,
		Data: map[string]any{
			DataResourceIDs: result.ResourceIDs,
			DataInstances:   result.Instances,
			DataFleetErrors: result.FleetErrors,
		},
		Metadata:     result.ProviderData,
		ErrorMessage: result.ErrorMessage,
	}, nil
}

func (s *Strategy) terminateInstances(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	if op.Context.DryRun {
		return &provideroperation.Result{Success: true}, nil
	}
	instanceIDs, _ := op.Parameters[ParamInstanceIDs].([]string)
	mapping, _ := op.Parameters[ParamResourceMapping].([]provideroperation.ResourceMapping)

	var report *providerhandler.ReleaseReport
	var err error
	if s.adapter != nil {
		report, err = s.adapter.ReleaseInstances(ctx, instanceIDs, mapping)
	} else {
		// Adapter unavailable: fall back to a direct terminate_instances call,
		// per spec.md §4.5 (unlike CREATE_INSTANCES, this path is not a hard deny).
		report, err = s.directTerminate(ctx, instanceIDs)
	}
	if err != nil {
		return nil, err
	}
	return &provideroperation.Result{Success: report.Success(), Data: map[string]any{DataReport: report}}, nil
}

func (s *Strategy) directTerminate(ctx context.Context, instanceIDs []string) (*providerhandler.ReleaseReport, error) {
	ltManager := launchtemplate.NewManager(s.client, s.executor, s.ltPolicy)
	common := providerhandler.Common{Client: s.client, Executor: s.executor, LT: ltManager}
	h := providerhandler.NewRunInstancesHandler(common)
	return h.Release(ctx, instanceIDs, nil)
}

func (s *Strategy) getInstanceStatus(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	instanceIDs, _ := op.Parameters[ParamInstanceIDs].([]string)
	ltManager := launchtemplate.NewManager(s.client, s.executor, s.ltPolicy)
	common := providerhandler.Common{Client: s.client, Executor: s.executor, LT: ltManager}
	machines, err := providerhandler.DescribeInstances(ctx, common, instanceIDs)
	if err != nil {
		return nil, err
	}
	return &provideroperation.Result{Success: true, Data: map[string]any{DataInstances: machines}}, nil
}

func (s *Strategy) describeResourceInstances(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	req, ok := op.Parameters[ParamRequest].(*request.Request)
	if !ok || req == nil {
		return nil, domainerrors.New(domainerrors.Validation, "describe_resource_instances requires a request", nil)
	}
	ltManager := launchtemplate.NewManager(s.client, s.executor, s.ltPolicy)
	common := providerhandler.Common{Client: s.client, Executor: s.executor, LT: ltManager}

	api := template.ProviderAPI(req.ProviderAPI)
	var (
		machines []*machine.Machine
		err      error
		capacity map[string]any
	)
	switch api {
	case template.APIEC2Fleet:
		h := providerhandler.NewEC2FleetHandler(common)
		machines, err = h.PollStatus(ctx, req)
		if err == nil && len(req.ResourceIDs) > 0 {
			fleetType, total, cErr := h.DescribeCapacity(ctx, req.ResourceIDs[0])
			if cErr == nil {
				capacity = map[string]any{"fleet_type": fleetType, "total_target_capacity": total}
			}
		}
	case template.APISpotFleet:
		h := providerhandler.NewSpotFleetHandler(common)
		machines, err = h.PollStatus(ctx, req)
		if err == nil && len(req.ResourceIDs) > 0 {
			fleetType, total, cErr := h.DescribeCapacity(ctx, req.ResourceIDs[0])
			if cErr == nil {
				capacity = map[string]any{"fleet_type": fleetType, "total_target_capacity": total}
			}
		}
	case template.APIASG:
		h := providerhandler.NewASGHandler(common)
		machines, err = h.PollStatus(ctx, req)
		if err == nil && len(req.ResourceIDs) > 0 {
			desired, cErr := h.CurrentDesiredCapacity(ctx, req.ResourceIDs[0])
			if cErr == nil {
				capacity = map[string]any{"desired_capacity": desired}
			}
		}
	default:
		h := providerhandler.NewRunInstancesHandler(common)
		machines, err = h.PollStatus(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	data := map[string]any{DataInstances: machines}
	if capacity != nil {
		data[DataCapacity] = capacity
	}
	return &provideroperation.Result{Success: true, Data: data}, nil
}

func (s *Strategy) validateTemplate(_ context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	_, tmpl, err := extractRequestTemplate(op)
	if err != nil {
		return nil, err
	}
	result := tmpl.Validate()
	return &provideroperation.Result{
		Success: result.OK(),
		Data:    map[string]any{DataValidation: result},
	}, nil
}

func (s *Strategy) getAvailableTemplates(ctx context.Context, _ provideroperation.Operation) (*provideroperation.Result, error) {
	if s.templates != nil {
		templates, err := s.templates.AvailableTemplates(ctx)
		if err == nil {
			return &provideroperation.Result{Success: true, Data: map[string]any{DataTemplates: templates}}, nil
		}
		log.FromContext(ctx).Warnw("scheduler adapter template lookup failed, falling back", "error", err)
	}
	return &provideroperation.Result{Success: true, Data: map[string]any{DataTemplates: builtinTemplates}}, nil
}

func (s *Strategy) healthCheck(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error) {
	if op.Context.DryRun {
		return &provideroperation.Result{Success: true}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	execErr := s.executor.Execute(ctx, "sts", "get_caller_identity", resilience.ReadOnly, func(ctx context.Context) error {
		_, callErr := s.client.STS.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
		if callErr == nil {
			return nil
		}
		return domainerrors.FromAWS("get_caller_identity", callErr)
	})
	if execErr != nil {
		return &provideroperation.Result{Success: false, ErrorMessage: execErr.Error()}, nil
	}
	return &provideroperation.Result{Success: true}, nil
}

func extractRequestTemplate(op provideroperation.Operation) (*request.Request, *template.Template, error) {
	tmpl, ok := op.Parameters[ParamTemplate].(*template.Template)
	if !ok || tmpl == nil {
		return nil, nil, domainerrors.New(domainerrors.Validation, "operation requires a template parameter", nil)
	}
	req, _ := op.Parameters[ParamRequest].(*request.Request)
	return req, tmpl, nil
}
