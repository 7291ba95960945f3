package providerhandler

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/log"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// allowedEC2FleetTypes is the validated set of spec.md §4.4.3.
var allowedEC2FleetTypes = map[template.FleetType]bool{
	template.FleetInstant:  true,
	template.FleetRequest:  true,
	template.FleetMaintain: true,
}

// EC2FleetHandler implements spec.md §4.4.3.
type EC2FleetHandler struct{ Common }

func NewEC2FleetHandler(c Common) *EC2FleetHandler { return &EC2FleetHandler{Common: c} }

func (h *EC2FleetHandler) Name() string { return "EC2Fleet" }

func (h *EC2FleetHandler) Acquire(ctx context.Context, req *request.Request, tmpl *template.Template) (*AcquireResult, error) {
	var extra []string
	if !allowedEC2FleetTypes[tmpl.FleetType] {
		extra = append(extra, fmt.Sprintf("unsupported ec2 fleet type %q", tmpl.FleetType))
	}
	if err := validatePrerequisites(tmpl, extra...); err != nil {
		return nil, err
	}

	ref, err := h.LT.Resolve(ctx, tmpl, req)
	if err != nil {
		return nil, err
	}

	input := &ec2.CreateFleetInput{
		Type:                  aws.String(string(tmpl.FleetType)),
		LaunchTemplateConfigs: buildLaunchTemplateConfigs(ref, tmpl),
		TargetCapacitySpecification: targetCapacitySpec(tmpl, req.RequestedCount),
	}
	switch tmpl.PriceType {
	case template.PriceSpot:
		input.SpotOptions = &ec2.SpotOptionsRequest{}
		if tmpl.AllocationStrategy != "" {
			input.SpotOptions.AllocationStrategy = aws.String(tmpl.AllocationStrategy)
		}
		if tmpl.MaxPrice > 0 {
			input.SpotOptions.MaxTotalPrice = aws.String(fmt.Sprintf("%.4f", tmpl.MaxPrice))
		}
	case template.PriceHeterogeneous:
		input.OnDemandOptions = &ec2.OnDemandOptionsRequest{}
		if tmpl.AllocationStrategy != "" {
			input.SpotOptions = &ec2.SpotOptionsRequest{AllocationStrategy: aws.String(tmpl.AllocationStrategy)}
		}
	}
	if tmpl.FleetType == template.FleetMaintain {
		input.ReplaceUnhealthyInstances = aws.Bool(true)
		input.ExcessCapacityTerminationPolicy = aws.String(ec2.FleetExcessCapacityTerminationPolicyTermination)
	}
	if len(tmpl.Tags) > 0 {
		tags := make([]*ec2.Tag, 0, len(tmpl.Tags))
		for k, v := range tmpl.Tags {
			tags = append(tags, &ec2.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.TagSpecifications = []*ec2.TagSpecification{
			{ResourceType: aws.String(ec2.ResourceTypeFleet), Tags: tags},
		}
	}

	var out *ec2.CreateFleetOutput
	err = h.Executor.Execute(ctx, "ec2", "create_fleet", resilience.Critical, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2.CreateFleetWithContext(ctx, input)
		return wrapAWSErr("create_fleet", callErr)
	})
	if err != nil {
		return nil, err
	}

	fleetID := aws.StringValue(out.FleetId)
	fleetErrs := convertFleetErrors(out.Errors)

	result := &AcquireResult{
		ResourceIDs:  []string{fleetID},
		ProviderData: handlerTag(h.Name()),
		FleetErrors:  fleetErrs,
	}

	// EC2-fleet `maintain`/`request` and spot-fleet cannot tag at launch: post-creation tagging.
	if tmpl.FleetType != template.FleetInstant && len(tmpl.Tags) > 0 {
		if err := h.tagFleetInstances(ctx, fleetID, tmpl.Tags); err != nil {
			logNonFatal(ctx, "tagging fleet instances", err)
		}
	}

	if tmpl.FleetType == template.FleetInstant {
		var instanceIDs []string
		for _, fi := range out.Instances {
			for _, id := range fi.InstanceIds {
				instanceIDs = append(instanceIDs, aws.StringValue(id))
			}
		}
		result.ProviderData["cached_instance_ids"] = instanceIDs
		if len(instanceIDs) == 0 {
			result.Success = false
			result.ErrorMessage = fmtErrors(fleetErrs)
			return result, nil
		}
		if err := sleep(ctx, postCreationBackoff); err != nil {
			return nil, err
		}
		instances, _ := describeInstancesAsMachines(ctx, &h.Common, instanceIDs, req.ID, tmpl.TemplateID, fleetID)
		result.Instances = instances
		result.Success = true
		return result, nil
	}

	// request/maintain: instances aren't known synchronously, discovered via PollStatus.
	result.Success = true
	return result, nil
}

func (h *EC2FleetHandler) tagFleetInstances(ctx context.Context, fleetID string, tags map[string]string) error {
	instanceIDs, err := h.activeFleetInstances(ctx, fleetID)
	if err != nil || len(instanceIDs) == 0 {
		return err
	}
	ec2Tags := make([]*ec2.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, &ec2.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return h.Executor.Execute(ctx, "ec2", "create_tags", resilience.Standard, func(ctx context.Context) error {
		_, callErr := h.Client.EC2.CreateTagsWithContext(ctx, &ec2.CreateTagsInput{
			Resources: aws.StringSlice(instanceIDs),
			Tags:      ec2Tags,
		})
		return wrapAWSErr("create_tags", callErr)
	})
}

func (h *EC2FleetHandler) activeFleetInstances(ctx context.Context, fleetID string) ([]string, error) {
	var ids []string
	var nextToken *string
	for {
		var out *ec2.DescribeFleetInstancesOutput
		err := h.Executor.Execute(ctx, "ec2", "describe_fleet_instances", resilience.ReadOnly, func(ctx context.Context) error {
			var callErr error
			out, callErr = h.Client.EC2.DescribeFleetInstancesWithContext(ctx, &ec2.DescribeFleetInstancesInput{
				FleetId:   aws.String(fleetID),
				NextToken: nextToken,
			})
			return wrapAWSErr("describe_fleet_instances", callErr)
		})
		if err != nil {
			return ids, err
		}
		for _, ai := range out.ActiveInstances {
			ids = append(ids, aws.StringValue(ai.InstanceId))
		}
		if out.NextToken == nil || aws.StringValue(out.NextToken) == "" {
			break
		}
		nextToken = out.NextToken
	}
	return ids, nil
}

func (h *EC2FleetHandler) PollStatus(ctx context.Context, req *request.Request) ([]*machine.Machine, error) {
	fleetID := firstOrEmpty(req.ResourceIDs)
	var fleetType string
	err := h.Executor.Execute(ctx, "ec2", "describe_fleets", resilience.ReadOnly, func(ctx context.Context) error {
		out, callErr := h.Client.EC2.DescribeFleetsWithContext(ctx, &ec2.DescribeFleetsInput{FleetIds: aws.StringSlice([]string{fleetID})})
		if callErr == nil && len(out.Fleets) > 0 {
			fleetType = aws.StringValue(out.Fleets[0].Type)
		}
		return wrapAWSErr("describe_fleets", callErr)
	})
	if err != nil {
		return nil, err
	}

	var instanceIDs []string
	if fleetType == string(template.FleetInstant) {
		if v, ok := req.Metadata["cached_instance_ids"]; ok {
			if ids, ok := v.([]string); ok {
				instanceIDs = ids
			}
		}
	} else {
		instanceIDs, err = h.activeFleetInstances(ctx, fleetID)
		if err != nil {
			return nil, err
		}
	}
	return describeInstancesAsMachines(ctx, &h.Common, instanceIDs, req.ID, req.TemplateID, fleetID)
}

// ReleaseGroup releases instances known to belong to this EC2 fleet, per
// spec.md §4.4.6 step 3: `maintain` fleets get a capacity decrease (and are
// deleted once target capacity reaches zero); `request`/`instant` fleets are
// terminated directly with no capacity modification.
func (h *EC2FleetHandler) ReleaseGroup(ctx context.Context, fleetID string, fleetType template.FleetType, currentTotal, desired int, instanceIDs []string) (*ReleaseReport, error) {
	report := NewReleaseReport()
	if fleetType == template.FleetMaintain {
		newTarget := int(math.Max(0, float64(currentTotal-len(instanceIDs))))
		err := h.Executor.Execute(ctx, "ec2", "modify_fleet", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.EC2.ModifyFleetWithContext(ctx, &ec2.ModifyFleetInput{
				FleetId: aws.String(fleetID),
				TargetCapacitySpecification: &ec2.TargetCapacitySpecificationRequest{
					TotalTargetCapacity: aws.Int64(int64(newTarget)),
				},
			})
			return wrapAWSErr("modify_fleet", callErr)
		})
		if err != nil {
			report.Record(fleetID, instanceIDs, err)
			return report, nil
		}
		termErr := h.terminate(ctx, instanceIDs)
		report.Record(fleetID, instanceIDs, termErr)
		if newTarget == 0 {
			delErr := h.Executor.Execute(ctx, "ec2", "delete_fleets", resilience.Critical, func(ctx context.Context) error {
				_, callErr := h.Client.EC2.DeleteFleetsWithContext(ctx, &ec2.DeleteFleetsInput{
					FleetIds:          aws.StringSlice([]string{fleetID}),
					TerminateInstances: aws.Bool(true),
				})
				return wrapAWSErr("delete_fleets", callErr)
			})
			report.RecordCleanupFailure(delErr)
		}
		return report, nil
	}
	// request/instant: terminate directly, skip capacity modification.
	termErr := h.terminate(ctx, instanceIDs)
	report.Record(fleetID, instanceIDs, termErr)
	return report, nil
}

// DescribeCapacity returns the fleet's type and current total target
// capacity, used both by release grouping (hydrate step, spec.md §4.4.6
// step 2) and by DESCRIBE_RESOURCE_INSTANCES's capacity projection
// (spec.md §4.5).
func (h *EC2FleetHandler) DescribeCapacity(ctx context.Context, fleetID string) (template.FleetType, int, error) {
	var out *ec2.DescribeFleetsOutput
	err := h.Executor.Execute(ctx, "ec2", "describe_fleets", resilience.ReadOnly, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2.DescribeFleetsWithContext(ctx, &ec2.DescribeFleetsInput{FleetIds: aws.StringSlice([]string{fleetID})})
		return wrapAWSErr("describe_fleets", callErr)
	})
	if err != nil || len(out.Fleets) == 0 {
		return template.FleetRequest, 0, err
	}
	f := out.Fleets[0]
	total := 0
	if f.TargetCapacitySpecification != nil {
		total = int(aws.Int64Value(f.TargetCapacitySpecification.TotalTargetCapacity))
	}
	return template.FleetType(aws.StringValue(f.Type)), total, nil
}

func (h *EC2FleetHandler) terminate(ctx context.Context, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	var last error
	for _, chunk := range cloudclient.Chunk(instanceIDs, cloudclient.MaxChunkSize) {
		err := h.Executor.Execute(ctx, "ec2", "terminate_instances", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.EC2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{InstanceIds: aws.StringSlice(chunk)})
			return wrapAWSErr("terminate_instances", callErr)
		})
		if err != nil {
			last = err
		}
	}
	return last
}

func (h *EC2FleetHandler) Release(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*ReleaseReport, error) {
	// Direct per-handler release (no grouping context) terminates the given ids.
	return h.terminateReport(ctx, instanceIDs)
}

func (h *EC2FleetHandler) terminateReport(ctx context.Context, instanceIDs []string) (*ReleaseReport, error) {
	report := NewReleaseReport()
	err := h.terminate(ctx, instanceIDs)
	report.Record("", instanceIDs, err)
	return report, nil
}

func buildLaunchTemplateConfigs(ref launchtemplate.Reference, tmpl *template.Template) []*ec2.FleetLaunchTemplateConfigRequest {
	ltSpec := &ec2.FleetLaunchTemplateSpecificationRequest{
		LaunchTemplateId: aws.String(ref.TemplateID),
		Version:          aws.String(ref.Version),
	}
	var overrides []*ec2.FleetLaunchTemplateOverridesRequest
	instanceTypes := tmpl.WeightedInstanceTypes
	if len(instanceTypes) == 0 {
		instanceTypes = map[string]float64{tmpl.InstanceType: 1}
	}
	for _, subnet := range tmpl.SubnetIDs {
		for it, weight := range instanceTypes {
			override := &ec2.FleetLaunchTemplateOverridesRequest{
				SubnetId:     aws.String(subnet),
				InstanceType: aws.String(it),
			}
			if weight > 0 {
				override.WeightedCapacity = aws.Float64(weight)
			}
			overrides = append(overrides, override)
		}
		// heterogeneous: repeat for the on-demand weighted map.
		for it, weight := range tmpl.OnDemandWeighted {
			overrides = append(overrides, &ec2.FleetLaunchTemplateOverridesRequest{
				SubnetId:         aws.String(subnet),
				InstanceType:     aws.String(it),
				WeightedCapacity: aws.Float64(weight),
			})
		}
	}
	return []*ec2.FleetLaunchTemplateConfigRequest{
		{LaunchTemplateSpecification: ltSpec, Overrides: overrides},
	}
}

func targetCapacitySpec(tmpl *template.Template, count int) *ec2.TargetCapacitySpecificationRequest {
	spec := &ec2.TargetCapacitySpecificationRequest{
		TotalTargetCapacity: aws.Int64(int64(count)),
	}
	switch tmpl.PriceType {
	case template.PriceOnDemand:
		spec.DefaultTargetCapacityType = aws.String(ec2.DefaultTargetCapacityTypeOnDemand)
	case template.PriceSpot:
		spec.DefaultTargetCapacityType = aws.String(ec2.DefaultTargetCapacityTypeSpot)
	case template.PriceHeterogeneous:
		onDemand := int64(math.Floor(float64(count) * float64(tmpl.PercentOnDemand) / 100))
		spotCount := int64(count) - onDemand
		spec.OnDemandTargetCapacity = aws.Int64(onDemand)
		spec.SpotTargetCapacity = aws.Int64(spotCount)
	}
	return spec
}

func convertFleetErrors(errs []*ec2.CreateFleetError) []request.FleetError {
	out := make([]request.FleetError, 0, len(errs))
	for _, e := range errs {
		fe := request.FleetError{ErrorCode: aws.StringValue(e.ErrorCode), ErrorMessage: aws.StringValue(e.ErrorMessage)}
		if e.LaunchTemplateAndOverrides != nil && e.LaunchTemplateAndOverrides.Overrides != nil {
			fe.InstanceType = aws.StringValue(e.LaunchTemplateAndOverrides.Overrides.InstanceType)
		}
		out = append(out, fe)
	}
	return out
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func logNonFatal(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	// best-effort step: logged, never fails acquire.
	log.FromContext(ctx).Warnw("non-fatal step failed", "step", op, "error", err)
}
