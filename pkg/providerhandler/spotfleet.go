package providerhandler

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/launchtemplate"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// allowedSpotFleetTypes excludes `instant`, which SpotFleet's API never
// supported (only EC2Fleet gained it), per spec.md §4.4.4.
var allowedSpotFleetTypes = map[template.FleetType]bool{
	template.FleetRequest:  true,
	template.FleetMaintain: true,
}

// SpotFleetHandler implements spec.md §4.4.4.
type SpotFleetHandler struct{ Common }

func NewSpotFleetHandler(c Common) *SpotFleetHandler { return &SpotFleetHandler{Common: c} }

func (h *SpotFleetHandler) Name() string { return "SpotFleet" }

func (h *SpotFleetHandler) Acquire(ctx context.Context, req *request.Request, tmpl *template.Template) (*AcquireResult, error) {
	var extra []string
	if !allowedSpotFleetTypes[tmpl.FleetType] {
		extra = append(extra, fmt.Sprintf("unsupported spot fleet type %q (instant is EC2Fleet-only)", tmpl.FleetType))
	}
	if tmpl.FleetRoleARN == "" {
		extra = append(extra, "fleet_role_arn is required for SpotFleet")
	}
	if err := validatePrerequisites(tmpl, extra...); err != nil {
		return nil, err
	}

	ref, err := h.LT.Resolve(ctx, tmpl, req)
	if err != nil {
		return nil, err
	}

	roleARN := expandFleetRoleARN(tmpl.FleetRoleARN)

	cfg := &ec2.SpotFleetRequestConfigData{
		IamFleetRole:                     aws.String(roleARN),
		TargetCapacity:                   aws.Int64(int64(req.RequestedCount)),
		Type:                             aws.String(string(tmpl.FleetType)),
		LaunchTemplateConfigs:            buildSpotLaunchTemplateConfigs(ref, tmpl),
		TerminateInstancesWithExpiration: aws.Bool(true),
	}
	if tmpl.AllocationStrategy != "" {
		cfg.AllocationStrategy = aws.String(tmpl.AllocationStrategy)
	}
	if tmpl.MaxPrice > 0 {
		cfg.SpotPrice = aws.String(fmt.Sprintf("%.4f", tmpl.MaxPrice))
	}
	if tmpl.FleetType == template.FleetMaintain {
		cfg.ExcessCapacityTerminationPolicy = aws.String("termination")
		cfg.ReplaceUnhealthyInstances = aws.Bool(true)
	}

	var out *ec2.RequestSpotFleetOutput
	err = h.Executor.Execute(ctx, "ec2", "request_spot_fleet", resilience.Critical, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2.RequestSpotFleetWithContext(ctx, &ec2.RequestSpotFleetInput{SpotFleetRequestConfig: cfg})
		return wrapAWSErr("request_spot_fleet", callErr)
	})
	if err != nil {
		return nil, err
	}

	fleetID := aws.StringValue(out.SpotFleetRequestId)
	result := &AcquireResult{
		Success:      true,
		ResourceIDs:  []string{fleetID},
		ProviderData: handlerTag(h.Name()),
	}

	if len(tmpl.Tags) > 0 {
		if err := h.tagFleetInstances(ctx, fleetID, tmpl.Tags); err != nil {
			logNonFatal(ctx, "tagging spot fleet instances", err)
		}
	}

	return result, nil
}

func (h *SpotFleetHandler) tagFleetInstances(ctx context.Context, fleetID string, tags map[string]string) error {
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

func (h *SpotFleetHandler) activeFleetInstances(ctx context.Context, fleetID string) ([]string, error) {
	var ids []string
	var nextToken *string
	for {
		var out *ec2.DescribeSpotFleetInstancesOutput
		err := h.Executor.Execute(ctx, "ec2", "describe_spot_fleet_instances", resilience.ReadOnly, func(ctx context.Context) error {
			var callErr error
			out, callErr = h.Client.EC2.DescribeSpotFleetInstancesWithContext(ctx, &ec2.DescribeSpotFleetInstancesInput{
				SpotFleetRequestId: aws.String(fleetID),
				NextToken:          nextToken,
			})
			return wrapAWSErr("describe_spot_fleet_instances", callErr)
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

func (h *SpotFleetHandler) PollStatus(ctx context.Context, req *request.Request) ([]*machine.Machine, error) {
	fleetID := firstOrEmpty(req.ResourceIDs)
	instanceIDs, err := h.activeFleetInstances(ctx, fleetID)
	if err != nil {
		return nil, err
	}
	return describeInstancesAsMachines(ctx, &h.Common, instanceIDs, req.ID, req.TemplateID, fleetID)
}

// ReleaseGroup implements spec.md §4.4.6 step 3 for SpotFleet: `maintain`
// fleets get their target capacity decreased via modify_spot_fleet_request
// before the instances are terminated; for `request` fleets a partial
// release terminates the given instances directly, and once all their
// instances are being released the fleet request is cancelled with
// TerminateInstances=true (no separate terminate call).
func (h *SpotFleetHandler) ReleaseGroup(ctx context.Context, fleetID string, fleetType template.FleetType, currentTotal, desired int, instanceIDs []string) (*ReleaseReport, error) {
	report := NewReleaseReport()
	if fleetType == template.FleetMaintain {
		newTarget := int(math.Max(0, float64(currentTotal-len(instanceIDs))))
		err := h.Executor.Execute(ctx, "ec2", "modify_spot_fleet_request", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.EC2.ModifySpotFleetRequestWithContext(ctx, &ec2.ModifySpotFleetRequestInput{
				SpotFleetRequestId: aws.String(fleetID),
				TargetCapacity:     aws.Int64(int64(newTarget)),
			})
			return wrapAWSErr("modify_spot_fleet_request", callErr)
		})
		if err != nil {
			report.Record(fleetID, instanceIDs, err)
			return report, nil
		}
		termErr := h.terminate(ctx, instanceIDs)
		report.Record(fleetID, instanceIDs, termErr)
		if newTarget == 0 {
			delErr := h.cancel(ctx, fleetID, false)
			report.RecordCleanupFailure(delErr)
		}
		return report, nil
	}
	if len(instanceIDs) < currentTotal {
		// request, partial release: terminate just the given instances.
		termErr := h.terminate(ctx, instanceIDs)
		report.Record(fleetID, instanceIDs, termErr)
		return report, nil
	}
	// request, whole fleet: cancel the fleet request and let AWS terminate its instances.
	err := h.cancel(ctx, fleetID, true)
	report.Record(fleetID, instanceIDs, err)
	return report, nil
}

// DescribeCapacity returns the spot fleet request's type and target
// capacity, mirroring EC2FleetHandler.DescribeCapacity.
func (h *SpotFleetHandler) DescribeCapacity(ctx context.Context, fleetID string) (template.FleetType, int, error) {
	var out *ec2.DescribeSpotFleetRequestsOutput
	err := h.Executor.Execute(ctx, "ec2", "describe_spot_fleet_requests", resilience.ReadOnly, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2.DescribeSpotFleetRequestsWithContext(ctx, &ec2.DescribeSpotFleetRequestsInput{
			SpotFleetRequestIds: aws.StringSlice([]string{fleetID}),
		})
		return wrapAWSErr("describe_spot_fleet_requests", callErr)
	})
	if err != nil || len(out.SpotFleetRequestConfigs) == 0 {
		return template.FleetRequest, 0, err
	}
	cfg := out.SpotFleetRequestConfigs[0].SpotFleetRequestConfig
	return template.FleetType(aws.StringValue(cfg.Type)), int(aws.Int64Value(cfg.TargetCapacity)), nil
}

func (h *SpotFleetHandler) cancel(ctx context.Context, fleetID string, terminate bool) error {
	return h.Executor.Execute(ctx, "ec2", "cancel_spot_fleet_requests", resilience.Critical, func(ctx context.Context) error {
		_, callErr := h.Client.EC2.CancelSpotFleetRequestsWithContext(ctx, &ec2.CancelSpotFleetRequestsInput{
			SpotFleetRequestIds: aws.StringSlice([]string{fleetID}),
			TerminateInstances:  aws.Bool(terminate),
		})
		return wrapAWSErr("cancel_spot_fleet_requests", callErr)
	})
}

func (h *SpotFleetHandler) terminate(ctx context.Context, instanceIDs []string) error {
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

func (h *SpotFleetHandler) Release(ctx context.Context, instanceIDs []string, _ []provideroperation.ResourceMapping) (*ReleaseReport, error) {
	report := NewReleaseReport()
	err := h.terminate(ctx, instanceIDs)
	report.Record("", instanceIDs, err)
	return report, nil
}

// buildSpotLaunchTemplateConfigs mirrors EC2Fleet's per-(subnet x instance
// type) override expansion (spec.md §4.4.3/§4.4.4 share this shape), adapted
// to SpotFleet's distinct (non-"Request"-suffixed) override type.
func buildSpotLaunchTemplateConfigs(ref launchtemplate.Reference, tmpl *template.Template) []*ec2.LaunchTemplateConfig {
	ltSpec := &ec2.FleetLaunchTemplateSpecification{
		LaunchTemplateId: aws.String(ref.TemplateID),
		Version:          aws.String(ref.Version),
	}
	var overrides []*ec2.LaunchTemplateOverrides
	instanceTypes := tmpl.WeightedInstanceTypes
	if len(instanceTypes) == 0 {
		instanceTypes = map[string]float64{tmpl.InstanceType: 1}
	}
	for _, subnet := range tmpl.SubnetIDs {
		for it, weight := range instanceTypes {
			override := &ec2.LaunchTemplateOverrides{
				SubnetId:     aws.String(subnet),
				InstanceType: aws.String(it),
			}
			if weight > 0 {
				override.WeightedCapacity = aws.Float64(weight)
			}
			if tmpl.MaxPrice > 0 {
				override.SpotPrice = aws.String(fmt.Sprintf("%.4f", tmpl.MaxPrice))
			}
			overrides = append(overrides, override)
		}
	}
	return []*ec2.LaunchTemplateConfig{
		{LaunchTemplateSpecification: ltSpec, Overrides: overrides},
	}
}

// expandFleetRoleARN resolves the well-known service-linked-role shorthand
// ("aws-ec2-spot-fleet-tagging-role") to its full ARN form, per spec.md §4.4.4.
// A bare role name is treated as already the service-linked role's name.
func expandFleetRoleARN(roleARN string) string {
	if strings.HasPrefix(roleARN, "arn:") {
		return roleARN
	}
	return fmt.Sprintf("arn:aws:iam::*:role/aws-service-role/spotfleet.amazonaws.com/%s", roleARN)
}
