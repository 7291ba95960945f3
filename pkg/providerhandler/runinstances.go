package providerhandler

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/awslabs/host-factory-controlplane/pkg/cloudclient"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/provideroperation"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
	"github.com/awslabs/host-factory-controlplane/pkg/resilience"
)

// RunInstancesHandler implements spec.md §4.4.2: the direct run_instances path.
type RunInstancesHandler struct{ Common }

func NewRunInstancesHandler(c Common) *RunInstancesHandler { return &RunInstancesHandler{Common: c} }

func (h *RunInstancesHandler) Name() string { return "RunInstances" }

func (h *RunInstancesHandler) Acquire(ctx context.Context, req *request.Request, tmpl *template.Template) (*AcquireResult, error) {
	if err := validatePrerequisites(tmpl); err != nil {
		return nil, err
	}
	ref, err := h.LT.Resolve(ctx, tmpl, req)
	if err != nil {
		return nil, err
	}

	tagSpecs := tagSpecifications(tmpl.Tags)

	var out *ec2.Reservation
	err = h.Executor.Execute(ctx, "ec2", "run_instances", resilience.Critical, func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2.RunInstancesWithContext(ctx, &ec2.RunInstancesInput{
			MinCount: aws.Int64(int64(req.RequestedCount)),
			MaxCount: aws.Int64(int64(req.RequestedCount)),
			LaunchTemplate: &ec2.LaunchTemplateSpecification{
				LaunchTemplateId: aws.String(ref.TemplateID),
				Version:          aws.String(ref.Version),
			},
			SubnetId:          aws.String(tmpl.SubnetIDs[0]),
			SecurityGroupIds:  aws.StringSlice(tmpl.SecurityGroupIDs),
			TagSpecifications: tagSpecs,
		})
		return wrapAWSErr("run_instances", callErr)
	})
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, postCreationBackoff); err != nil {
		return nil, err
	}

	instanceIDs := make([]string, 0, len(out.Instances))
	instances := make([]*machine.Machine, 0, len(out.Instances))
	for _, inst := range out.Instances {
		id := aws.StringValue(inst.InstanceId)
		instanceIDs = append(instanceIDs, id)
		instances = append(instances, machineFromInstance(inst, req.ID, tmpl.TemplateID, aws.StringValue(out.ReservationId)))
	}

	return &AcquireResult{
		Success:      true,
		ResourceIDs:  []string{aws.StringValue(out.ReservationId)},
		Instances:    instances,
		ProviderData: handlerTag(h.Name()),
	}, nil
}

func (h *RunInstancesHandler) PollStatus(ctx context.Context, req *request.Request) ([]*machine.Machine, error) {
	return describeInstancesAsMachines(ctx, &h.Common, req.InstanceIDs, req.ID, req.TemplateID, "")
}

func (h *RunInstancesHandler) Release(ctx context.Context, instanceIDs []string, _ []provideroperation.ResourceMapping) (*ReleaseReport, error) {
	report := NewReleaseReport()
	for _, chunk := range cloudclient.Chunk(instanceIDs, cloudclient.MaxChunkSize) {
		err := h.Executor.Execute(ctx, "ec2", "terminate_instances", resilience.Critical, func(ctx context.Context) error {
			_, callErr := h.Client.EC2.TerminateInstancesWithContext(ctx, &ec2.TerminateInstancesInput{
				InstanceIds: aws.StringSlice(chunk),
			})
			return wrapAWSErr("terminate_instances", callErr)
		})
		report.Record("no-fleet", chunk, err)
	}
	return report, nil
}

func tagSpecifications(tags map[string]string) []*ec2.TagSpecification {
	if len(tags) == 0 {
		return nil
	}
	ec2Tags := make([]*ec2.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, &ec2.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return []*ec2.TagSpecification{
		{ResourceType: aws.String(ec2.ResourceTypeInstance), Tags: ec2Tags},
	}
}

// DescribeInstances is the exported entry point GET_INSTANCE_STATUS uses
// directly (spec.md §4.5), bypassing any specific handler since a bare
// instance-id list carries no fleet/ASG context of its own.
func DescribeInstances(ctx context.Context, c Common, instanceIDs []string) ([]*machine.Machine, error) {
	return describeInstancesAsMachines(ctx, &c, instanceIDs, "", "", "")
}

// describeInstancesAsMachines chunks instanceIDs (spec.md §5's 50-id cap),
// describes each chunk under the read_only strategy, and adapts results to
// domain Machine payloads, falling back to a minimal payload per instance
// when the full adapter can't be applied (spec.md §4.4.7 step 4).
func describeInstancesAsMachines(ctx context.Context, c *Common, instanceIDs []string, requestID, templateID, resourceID string) ([]*machine.Machine, error) {
	var results []*machine.Machine
	for _, chunk := range cloudclient.Chunk(instanceIDs, cloudclient.MaxChunkSize) {
		var out *ec2.DescribeInstancesOutput
		err := c.Executor.Execute(ctx, "ec2", "describe_instances", resilience.ReadOnly, func(ctx context.Context) error {
			var callErr error
			out, callErr = c.Client.EC2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
				InstanceIds: aws.StringSlice(chunk),
			})
			return wrapAWSErr("describe_instances", callErr)
		})
		if err != nil {
			for _, id := range chunk {
				results = append(results, minimalMachine(id, resourceID, machine.StatusUnknown))
			}
			continue
		}
		found := map[string]bool{}
		for _, res := range out.Reservations {
			for _, inst := range res.Instances {
				results = append(results, machineFromInstance(inst, requestID, templateID, resourceID))
				found[aws.StringValue(inst.InstanceId)] = true
			}
		}
		for _, id := range chunk {
			if !found[id] {
				results = append(results, minimalMachine(id, resourceID, machine.StatusUnknown))
			}
		}
	}
	return results, nil
}
