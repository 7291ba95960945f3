package providerhandler

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
)

// instanceStateMap translates raw EC2 instance-state names into the
// provider-neutral machine.Status vocabulary of spec.md §3.
var instanceStateMap = map[string]machine.Status{
	ec2.InstanceStateNamePending:      machine.StatusPending,
	ec2.InstanceStateNameRunning:      machine.StatusRunning,
	ec2.InstanceStateNameShuttingDown: machine.StatusShuttingDown,
	ec2.InstanceStateNameStopping:     machine.StatusStopping,
	ec2.InstanceStateNameStopped:      machine.StatusStopped,
	ec2.InstanceStateNameTerminated:   machine.StatusTerminated,
}

// machineFromInstance adapts a raw ec2.Instance into the domain Machine
// payload, per spec.md §4.4.7 step 4. On partial/missing data it still
// returns the minimal fallback shape named in the spec rather than failing.
func machineFromInstance(inst *ec2.Instance, requestID, templateID, resourceID string) *machine.Machine {
	m := machine.New(aws.StringValue(inst.InstanceId), requestID, templateID, "aws")
	if inst.State != nil {
		if st, ok := instanceStateMap[aws.StringValue(inst.State.Name)]; ok {
			m.Status = st
		} else {
			m.Status = machine.StatusUnknown
		}
	}
	m.PrivateIP = aws.StringValue(inst.PrivateIpAddress)
	m.PublicIP = aws.StringValue(inst.PublicIpAddress)
	m.InstanceType = aws.StringValue(inst.InstanceType)
	m.ImageID = aws.StringValue(inst.ImageId)
	if inst.LaunchTime != nil {
		lt := *inst.LaunchTime
		m.LaunchTime = &lt
	}
	m.Metadata["resource_id"] = resourceID
	m.Metadata["subnet_id"] = aws.StringValue(inst.SubnetId)
	m.Metadata["vpc_id"] = aws.StringValue(inst.VpcId)
	return m
}

// minimalMachine builds the fallback payload of spec.md §4.4.7 step 4 when
// the full adapter cannot run (e.g. a describe call returned a bare record).
func minimalMachine(instanceID, resourceID string, status machine.Status) *machine.Machine {
	m := machine.New(instanceID, "", "", "aws")
	m.Status = status
	m.Metadata["resource_id"] = resourceID
	return m
}
