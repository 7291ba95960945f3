package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/awslabs/host-factory-controlplane/pkg/cqrs"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
	"github.com/awslabs/host-factory-controlplane/pkg/providerselect"
	"github.com/awslabs/host-factory-controlplane/pkg/queries"
	"github.com/awslabs/host-factory-controlplane/pkg/uow"
)

// ProviderStrategy is the subset of pkg/providerstrategy.Strategy every
// command handler here depends on, kept as a local interface so this
// package never imports the concrete strategy (tests can swap in a fake).
type ProviderStrategy interface {
	Execute(ctx context.Context, op provideroperation.Operation) (*provideroperation.Result, error)
}

// CreateMachineRequestHandler implements spec.md §4.7's orchestration steps
// 1–12.
type CreateMachineRequestHandler struct {
	UoW        *uow.Factory
	QueryBus   *cqrs.QueryBus
	Selector   *providerselect.Selector
	Capability *providerselect.CapabilityValidator
	Strategy   ProviderStrategy
}

func (h *CreateMachineRequestHandler) Handle(ctx context.Context, cmd CreateMachineRequestCommand) (any, error) {
	logger := log.FromContext(ctx)

	// step 1: validate, at least one provider strategy registered.
	if cmd.TemplateID == "" {
		return nil, domainerrors.New(domainerrors.Validation, "template_id is required", nil)
	}
	if cmd.RequestedCount <= 0 {
		return nil, domainerrors.New(domainerrors.Validation, "requested_count must be positive", nil)
	}
	if h.Strategy == nil {
		return nil, domainerrors.New(domainerrors.Configuration, "no provider strategy available", nil)
	}

	// step 2: resolve template via query bus.
	tmplAny, err := h.QueryBus.Execute(ctx, queries.GetTemplateQuery{TemplateID: cmd.TemplateID})
	if err != nil {
		return nil, err
	}
	tmpl, ok := tmplAny.(*template.Template)
	if !ok || tmpl == nil {
		return nil, domainerrors.New(domainerrors.NotFound, "template "+cmd.TemplateID+" not found", nil)
	}

	// step 3: select provider instance.
	selection, err := h.Selector.Select(ctx, string(tmpl.ProviderAPI))
	if err != nil {
		return nil, err
	}
	logger.Infow("selected provider instance", "instance", selection.Instance.Name, "reason", selection.Reason)

	// step 4: validate template compatibility, STRICT.
	validation := h.Capability.Validate(ctx, selection.Instance, tmpl, providerselect.ModeStrict)
	if !validation.OK() {
		return nil, validation.AsDomainError()
	}

	// step 5: build aggregate, stamp provenance.
	req, err := request.New(cmd.TemplateID, cmd.RequestedCount)
	if err != nil {
		return nil, err
	}
	if cmd.RequestID != "" {
		req.ID = cmd.RequestID
	}
	for k, v := range cmd.Metadata {
		req.Metadata[k] = v
	}
	req.StampProvider(selection.Instance.Type, selection.Instance.Name, string(tmpl.ProviderAPI), selection.Reason, selection.Confidence)

	if cmd.DryRun {
		if err := req.MarkCompletedDryRun(); err != nil {
			return nil, err
		}
		if err := h.persist(ctx, req, nil); err != nil {
			return nil, err
		}
		return req.ID, nil
	}

	if err := req.MarkDispatched(); err != nil {
		return nil, err
	}

	// step 7: execute provisioning.
	result, provisionErr := h.Strategy.Execute(ctx, provideroperation.Operation{
		Type: provideroperation.CreateInstances,
		Parameters: map[string]any{
			"request":  req,
			"template": tmpl,
		},
	})
	if provisionErr != nil {
		req.MarkFailed("ProvisioningError", provisionErr.Error())
		_ = h.persist(ctx, req, nil)
		return nil, provisionErr
	}
	if !result.Success {
		req.MarkFailed("ProvisioningFailure", result.ErrorMessage)
		_ = h.persist(ctx, req, nil)
		return nil, domainerrors.New(domainerrors.Infra, result.ErrorMessage, nil)
	}

	// step 8: extract resource ids.
	if resourceIDs, ok := result.Data["resource_ids"].([]string); ok {
		req.AppendResourceIDs(resourceIDs...)
	}

	// step 9: construct Machine aggregates, one UoW save each.
	instances, _ := result.Data["instances"].([]*machine.Machine)
	var machineEvents []events.Event
	for _, m := range instances {
		m.RequestID = req.ID
		m.TemplateID = req.TemplateID
		if err := h.UoW.Machines.Save(ctx, m); err != nil {
			return nil, err
		}
		req.AppendInstanceIDs(m.InstanceID)
		machineEvents = append(machineEvents, events.MachineDiscovered{RequestID: req.ID, MachineID: m.InstanceID, At: time.Now()})
	}

	// step 10: partial-failure details + new status.
	if fleetErrs, ok := result.Data["fleet_errors"].([]request.FleetError); ok && len(fleetErrs) > 0 {
		req.SetFleetErrors(fleetErrs)
		req.SetErrorSummary("ProvisioningPartialFailure", summarizeFleetErrors(fleetErrs))
	}
	message := fmt.Sprintf("%d/%d instances discovered", len(instances), cmd.RequestedCount)
	if err := req.ResolveStatus(len(instances), message); err != nil {
		return nil, err
	}

	// steps 11/12: persist within one UoW, publish on success.
	if err := h.persist(ctx, req, machineEvents); err != nil {
		return nil, err
	}
	return req.ID, nil
}

func (h *CreateMachineRequestHandler) persist(ctx context.Context, req *request.Request, extra []events.Event) error {
	u := h.UoW.New()
	if err := u.Requests.Save(ctx, req); err != nil {
		return err
	}
	u.Collect(req)
	u.Record(extra...)
	u.Commit(ctx)
	return nil
}

func summarizeFleetErrors(errs []request.FleetError) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.ErrorCode + ": " + e.ErrorMessage
	}
	if msg == "" {
		return "Unknown API errors"
	}
	return msg
}

// CreateReturnRequestHandler implements spec.md §4.7's return-path
// orchestration, fanning out one task per template group (spec.md §5).
type CreateReturnRequestHandler struct {
	UoW      *uow.Factory
	Strategy ProviderStrategy
}

type returnGroupResult struct {
	templateID string
	report     *provideroperation.Result
	err        error
}

func (h *CreateReturnRequestHandler) Handle(ctx context.Context, cmd CreateReturnRequestCommand) (any, error) {
	if len(cmd.MachineIDs) == 0 {
		return nil, domainerrors.New(domainerrors.Validation, "machine_ids must not be empty", nil)
	}

	req, err := request.NewReturn(cmd.MachineIDs)
	if err != nil {
		return nil, err
	}
	if err := h.persist(ctx, req); err != nil {
		return nil, err
	}

	// step 3/4: group machines by template, build resource_mapping per group.
	groups := map[string][]provideroperation.ResourceMapping{}
	instancesByTemplate := map[string][]string{}
	for _, machineID := range cmd.MachineIDs {
		m, err := h.UoW.Machines.FindByID(ctx, machineID)
		if err != nil {
			req.MarkFailed("EntityNotFound", "machine "+machineID+" not found")
			_ = h.persist(ctx, req)
			return nil, err
		}
		owner, err := h.UoW.Requests.FindByID(ctx, m.RequestID)
		if err != nil {
			req.MarkFailed("EntityNotFound", "owning request for machine "+machineID+" not found")
			_ = h.persist(ctx, req)
			return nil, err
		}
		resourceID := ""
		if len(owner.ResourceIDs) > 0 {
			resourceID = owner.ResourceIDs[0]
		}
		groups[m.TemplateID] = append(groups[m.TemplateID], provideroperation.ResourceMapping{
			InstanceID:      machineID,
			ResourceID:      resourceID,
			DesiredCapacity: owner.RequestedCount,
		})
		instancesByTemplate[m.TemplateID] = append(instancesByTemplate[m.TemplateID], machineID)
	}

	// step 5: one task per template group, errors recorded not cancelling siblings.
	results := make(chan returnGroupResult, len(groups))
	for templateID, mapping := range groups {
		templateID, mapping := templateID, mapping
		instanceIDs := instancesByTemplate[templateID]
		go func() {
			result, err := h.Strategy.Execute(ctx, provideroperation.Operation{
				Type: provideroperation.TerminateInstances,
				Parameters: map[string]any{
					"instance_ids":     instanceIDs,
					"resource_mapping": mapping,
				},
			})
			results <- returnGroupResult{templateID: templateID, report: result, err: err}
		}()
	}

	succeeded := 0
	var combined error
	for range groups {
		res := <-results
		if res.err != nil || res.report == nil || !res.report.Success {
			groupErr := res.err
			switch {
			case groupErr != nil:
				groupErr = fmt.Errorf("template group %s: %w", res.templateID, groupErr)
			case res.report == nil:
				groupErr = fmt.Errorf("template group %s: no result returned", res.templateID)
			default:
				groupErr = fmt.Errorf("template group %s: %s", res.templateID, res.report.ErrorMessage)
			}
			combined = multierr.Append(combined, groupErr)
			continue
		}
		succeeded += len(instancesByTemplate[res.templateID])
	}

	message := "all groups released successfully"
	if combined != nil {
		message = "release failed for template groups: " + combined.Error()
	}
	if err := req.MarkDispatched(); err != nil {
		return nil, err
	}
	if err := req.ResolveStatus(succeeded, message); err != nil {
		return nil, err
	}
	if err := h.persist(ctx, req); err != nil {
		return nil, err
	}
	return req.ID, nil
}

func (h *CreateReturnRequestHandler) persist(ctx context.Context, req *request.Request) error {
	u := h.UoW.New()
	if err := u.Requests.Save(ctx, req); err != nil {
		return err
	}
	u.Collect(req)
	u.Commit(ctx)
	return nil
}

// UpdateRequestStatusHandler implements the UpdateStatus command, sharing
// the same UoW discipline as Create (see DESIGN.md's Open Question
// decision).
type UpdateRequestStatusHandler struct{ UoW *uow.Factory }

func (h *UpdateRequestStatusHandler) Handle(ctx context.Context, cmd UpdateRequestStatusCommand) (any, error) {
	u := h.UoW.New()
	req, err := u.Requests.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := req.ResolveStatus(cmd.DiscoveredInstances, cmd.Message); err != nil {
		return nil, err
	}
	if err := u.Requests.Save(ctx, req); err != nil {
		return nil, err
	}
	u.Collect(req)
	u.Commit(ctx)
	return nil, nil
}

// CancelRequestHandler implements the Cancel command.
type CancelRequestHandler struct{ UoW *uow.Factory }

func (h *CancelRequestHandler) Handle(ctx context.Context, cmd CancelRequestCommand) (any, error) {
	u := h.UoW.New()
	req, err := u.Requests.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := req.Cancel(cmd.Reason); err != nil {
		return nil, err
	}
	if err := u.Requests.Save(ctx, req); err != nil {
		return nil, err
	}
	u.Collect(req)
	u.Commit(ctx)
	return nil, nil
}

// CompleteRequestHandler implements the Complete command.
type CompleteRequestHandler struct{ UoW *uow.Factory }

func (h *CompleteRequestHandler) Handle(ctx context.Context, cmd CompleteRequestCommand) (any, error) {
	u := h.UoW.New()
	req, err := u.Requests.FindByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := req.ResolveStatus(req.RequestedCount, cmd.Message); err != nil {
		return nil, err
	}
	if err := u.Requests.Save(ctx, req); err != nil {
		return nil, err
	}
	u.Collect(req)
	u.Commit(ctx)
	return nil, nil
}
