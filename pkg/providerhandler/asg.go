package providerhandler

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/autoscaling"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// ASGHandler implements spec.md §4.4.5: provisioning via an Auto Scaling
// Group sized to exactly the requested capacity rather than a fleet request.
type ASGHandler struct{ Common }

func NewASGHandler(c Common) *ASGHandler { return &ASGHandler{Common: c} }

func (h *ASGHandler) Name() string { return "ASG" }

// asgName derives a deterministic group name from the request, so that a
// retried CREATE_INSTANCES (same request id) resolves to the same group
// instead of creating a duplicate, per spec.md §4.4.5.
func asgName(req *request.Request) string {
	return fmt.Sprintf("hf-%s-%s", req.TemplateID, req.ID)
}

func (h *ASGHandler) Acquire(ctx context.Context, req *request.Request, tmpl *template.Template) (*AcquireResult, error) {
	if err := validatePrerequisites(tmpl); err != nil {
		return nil, err
	}
	ref, err := h.LT.Resolve(ctx, tmpl, req)
	if err != nil {
		return nil, err
	}

	name := asgName(req)
	desired := int64(req.RequestedCount)

	err = h.Executor.Execute(ctx, "autoscaling", "create_auto_scaling_group", resilience.Critical, func(ctx context.Context) error {
		_, callErr := h.Client.AutoScaling.CreateAutoScalingGroupWithContext(ctx, &autoscaling.CreateAutoScalingGroupInput{
			AutoScalingGroupName: aws.String(name),
			LaunchTemplate: &autoscaling.LaunchTemplateSpecification{
				LaunchTemplateId: aws.String(ref.TemplateID),
				Version:          aws.String(ref.Version),
			},
			MinSize:              aws.Int64(desired),
			MaxSize:              aws.Int64(desired),
			DesiredCapacity:      aws.Int64(desired),
			VPCZoneIdentifier:    aws.String(joinSubnets(tmpl.SubnetIDs)),
			Tags:                 asgTags(name, tmpl.Tags),
			NewInstancesProtectedFromScaleIn: aws.Bool(true),
		})
		return wrapAWSErr("create_auto_scaling_group", callErr)
	})
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, postCreationBackoff); err != nil {
		return nil, err
	}

	instances, err := h.groupInstances(ctx, name)
	if err != nil {
		return nil, err
	}

	return &AcquireResult{
		Success:      true,
		ResourceIDs:  []string{name},
		Instances:    instances,
		ProviderData: handlerTag(h.Name()),
	}, nil
}

func (h *ASGHandler) groupInstances(ctx context.Context, name string) ([]*machine.Machine, error) {
	var out *autoscaling.DescribeAutoScalingGroupsOutput
	err := h.Executor.Execute(ctx, "autoscaling", "describe_auto_scaling_groups", resilience.ReadOnly, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.AutoScaling.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: aws.StringSlice([]string{name}),
		})
		return wrapAWSErr("describe_auto_scaling_groups", callErr)
	})
	if err != nil {
		return nil, err
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, nil
	}
	var instanceIDs []string
	for _, inst := range out.AutoScalingGroups[0].Instances {
		instanceIDs = append(instanceIDs, aws.StringValue(inst.InstanceId))
	}
	return describeInstancesAsMachines(ctx, &h.Common, instanceIDs, "", "", name)
}

func (h *ASGHandler) PollStatus(ctx context.Context, req *request.Request) ([]*machine.Machine, error) {
	name := firstOrEmpty(req.ResourceIDs)
	instances, err := h.groupInstances(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, m := range instances {
		m.RequestID = req.ID
		m.TemplateID = req.TemplateID
	}
	return instances, nil
}

// ReleaseGroup implements spec.md §4.4.6 step 3 for ASG: decrease desired
// capacity first, then terminate each instance out of the group
// individually (DecrementDesiredCapacity=false to avoid a double-decrement),
// preserving the strict ordering guarantee. If the group's new desired
// capacity is zero, the group itself is force-deleted (best-effort), whether
// or not every terminate call succeeded.
func (h *ASGHandler) ReleaseGroup(ctx context.Context, name string, currentDesired int, instanceIDs []string) (*ReleaseReport, error) {
	report := NewReleaseReport()
	newDesired := currentDesired - len(instanceIDs)
	if newDesired < 0 {
		newDesired = 0
	}

	err := h.Executor.Execute(ctx, "autoscaling", "update_auto_scaling_group", resilience.Critical, func(ctx context.Context) error {
		_, callErr := h.Client.AutoScaling.UpdateAutoScalingGroupWithContext(ctx, &autoscaling.UpdateAutoScalingGroupInput{
			AutoScalingGroupName: aws.String(name),
			MinSize:              aws.Int64(int64(newDesired)),
			DesiredCapacity:      aws.Int64(int64(newDesired)),
		})
		return wrapAWSErr("update_auto_scaling_group", callErr)
	})
	if err != nil {
		report.Record(name, instanceIDs, err)
		return report, nil
	}

	var last error
	for _, id := range instanceIDs {
		err := h.Executor.Execute(ctx, "autoscaling", "terminate_instance_in_auto_scaling_group", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.AutoScaling.TerminateInstanceInAutoScalingGroupWithContext(ctx, &autoscaling.TerminateInstanceInAutoScalingGroupInput{
				InstanceId:                     aws.String(id),
				ShouldDecrementDesiredCapacity: aws.Bool(false),
			})
			return wrapAWSErr("terminate_instance_in_auto_scaling_group", callErr)
		})
		if err != nil {
			last = err
		}
	}
	report.Record(name, instanceIDs, last)

	if newDesired == 0 {
		delErr := h.Executor.Execute(ctx, "autoscaling", "delete_auto_scaling_group", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.AutoScaling.DeleteAutoScalingGroupWithContext(ctx, &autoscaling.DeleteAutoScalingGroupInput{
				AutoScalingGroupName: aws.String(name),
				ForceDelete:          aws.Bool(true),
			})
			return wrapAWSErr("delete_auto_scaling_group", callErr)
		})
		report.RecordCleanupFailure(delErr)
	}
	return report, nil
}

func (h *ASGHandler) Release(ctx context.Context, instanceIDs []string, mapping []provideroperation.ResourceMapping) (*ReleaseReport, error) {
	byGroup := map[string][]string{}
	for _, m := range mapping {
		byGroup[m.ResourceID] = append(byGroup[m.ResourceID], m.InstanceID)
	}
	report := NewReleaseReport()
	for name, ids := range byGroup {
		current, err := h.CurrentDesiredCapacity(ctx, name)
		if err != nil {
			report.Record(name, ids, err)
			continue
		}
		groupReport, _ := h.ReleaseGroup(ctx, name, current, ids)
		report.Merge(groupReport)
	}
	return report, nil
}

// CurrentDesiredCapacity returns the group's current desired capacity, used
// both by release grouping's hydrate step and by direct per-handler Release.
func (h *ASGHandler) CurrentDesiredCapacity(ctx context.Context, name string) (int, error) {
	var out *autoscaling.DescribeAutoScalingGroupsOutput
	err := h.Executor.Execute(ctx, "autoscaling", "describe_auto_scaling_groups", resilience.ReadOnly, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.AutoScaling.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: aws.StringSlice([]string{name}),
		})
		return wrapAWSErr("describe_auto_scaling_groups", callErr)
	})
	if err != nil {
		return 0, err
	}
	if len(out.AutoScalingGroups) == 0 {
		return 0, nil
	}
	return int(aws.Int64Value(out.AutoScalingGroups[0].DesiredCapacity)), nil
}

func asgTags(name string, tags map[string]string) []*autoscaling.Tag {
	out := make([]*autoscaling.Tag, 0, len(tags)+1)
	out = append(out, &autoscaling.Tag{
		ResourceId:        aws.String(name),
		ResourceType:      aws.String("auto-scaling-group"),
		Key:               aws.String("Name"),
		Value:             aws.String(name),
		PropagateAtLaunch: aws.Bool(true),
	})
	for k, v := range tags {
		out = append(out, &autoscaling.Tag{
			ResourceId:        aws.String(name),
			ResourceType:      aws.String("auto-scaling-group"),
			Key:               aws.String(k),
			Value:             aws.String(v),
			PropagateAtLaunch: aws.Bool(true),
		})
	}
	return out
}

func joinSubnets(subnets []string) string {
	out := ""
	for i, s := range subnets {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
