/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cloudprovidertest provides hand-rolled fakes over the AWS SDK
// interfaces this control plane consumes (ec2iface.EC2API,
// autoscalingiface.AutoScalingAPI, stsiface.STSAPI), in the teacher's own
// pkg/cloudprovider/fake idiom: a struct embedding the real interface (so
// unimplemented methods are simply never called rather than requiring a
// generated mock), per-method call counting behind a mutex, and an injectable
// error/response per call for failure-path tests. No mock-generation library
// appears anywhere in the retrieval pack, so a hand-rolled fake matches the
// pack's own convention rather than reaching for golang/mock.
package cloudprovidertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// EC2 is a fake ec2iface.EC2API. Each *Output field seeds the response the
// corresponding *WithContext call returns; each *Error field, when non-nil,
// makes that call fail instead. Calls are recorded for assertions.
type EC2 struct {
	ec2iface.EC2API

	mu    sync.Mutex
	calls map[string]int

	RunInstancesOutput  *ec2.Reservation
	RunInstancesError   error
	RunInstancesBehavior func(*ec2.RunInstancesInput) (*ec2.Reservation, error)

	TerminateInstancesError error

	DescribeInstancesOutput *ec2.DescribeInstancesOutput
	DescribeInstancesError  error

	CreateFleetOutput *ec2.CreateFleetOutput
	CreateFleetError  error

	ModifyFleetError error
	DeleteFleetsOutput *ec2.DeleteFleetsOutput
	DeleteFleetsError  error

	DescribeFleetsOutput *ec2.DescribeFleetsOutput
	DescribeFleetsError  error

	DescribeFleetInstancesOutput *ec2.DescribeFleetInstancesOutput
	DescribeFleetInstancesError  error

	RequestSpotFleetOutput *ec2.RequestSpotFleetOutput
	RequestSpotFleetError  error

	ModifySpotFleetRequestError error

	CancelSpotFleetRequestsOutput *ec2.CancelSpotFleetRequestsOutput
	CancelSpotFleetRequestsError  error

	DescribeSpotFleetRequestsOutput *ec2.DescribeSpotFleetRequestsOutput
	DescribeSpotFleetRequestsError  error

	DescribeSpotFleetInstancesOutput *ec2.DescribeSpotFleetInstancesOutput
	DescribeSpotFleetInstancesError  error

	CreateLaunchTemplateOutput *ec2.CreateLaunchTemplateOutput
	CreateLaunchTemplateError  error

	CreateLaunchTemplateVersionOutput *ec2.CreateLaunchTemplateVersionOutput
	CreateLaunchTemplateVersionError  error

	DescribeLaunchTemplateVersionsOutput *ec2.DescribeLaunchTemplateVersionsOutput
	DescribeLaunchTemplateVersionsError  error

	CreateTagsError error
}

// NewEC2 constructs an empty fake; callers set the Output/Error fields they
// need before exercising code under test.
func NewEC2() *EC2 {
	return &EC2{calls: map[string]int{}}
}

// Calls returns how many times method was invoked.
func (f *EC2) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *EC2) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *EC2) RunInstancesWithContext(_ context.Context, in *ec2.RunInstancesInput, _ ...request.Option) (*ec2.Reservation, error) {
	f.record("RunInstances")
	if f.RunInstancesBehavior != nil {
		return f.RunInstancesBehavior(in)
	}
	if f.RunInstancesError != nil {
		return nil, f.RunInstancesError
	}
	if f.RunInstancesOutput != nil {
		return f.RunInstancesOutput, nil
	}
	return defaultReservation(in), nil
}

func (f *EC2) TerminateInstancesWithContext(_ context.Context, in *ec2.TerminateInstancesInput, _ ...request.Option) (*ec2.TerminateInstancesOutput, error) {
	f.record("TerminateInstances")
	if f.TerminateInstancesError != nil {
		return nil, f.TerminateInstancesError
	}
	out := &ec2.TerminateInstancesOutput{}
	for _, id := range in.InstanceIds {
		out.TerminatingInstances = append(out.TerminatingInstances, &ec2.InstanceStateChange{
			InstanceId:    id,
			CurrentState:  &ec2.InstanceState{Name: aws.String("shutting-down")},
			PreviousState: &ec2.InstanceState{Name: aws.String("running")},
		})
	}
	return out, nil
}

func (f *EC2) DescribeInstancesWithContext(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	f.record("DescribeInstances")
	if f.DescribeInstancesError != nil {
		return nil, f.DescribeInstancesError
	}
	if f.DescribeInstancesOutput != nil {
		return f.DescribeInstancesOutput, nil
	}
	return &ec2.DescribeInstancesOutput{}, nil
}

func (f *EC2) CreateFleetWithContext(_ context.Context, _ *ec2.CreateFleetInput, _ ...request.Option) (*ec2.CreateFleetOutput, error) {
	f.record("CreateFleet")
	if f.CreateFleetError != nil {
		return nil, f.CreateFleetError
	}
	if f.CreateFleetOutput != nil {
		return f.CreateFleetOutput, nil
	}
	return &ec2.CreateFleetOutput{FleetId: aws.String("fleet-fake-0001")}, nil
}

func (f *EC2) ModifyFleetWithContext(_ context.Context, _ *ec2.ModifyFleetInput, _ ...request.Option) (*ec2.ModifyFleetOutput, error) {
	f.record("ModifyFleet")
	if f.ModifyFleetError != nil {
		return nil, f.ModifyFleetError
	}
	return &ec2.ModifyFleetOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) DeleteFleetsWithContext(_ context.Context, _ *ec2.DeleteFleetsInput, _ ...request.Option) (*ec2.DeleteFleetsOutput, error) {
	f.record("DeleteFleets")
	if f.DeleteFleetsError != nil {
		return nil, f.DeleteFleetsError
	}
	if f.DeleteFleetsOutput != nil {
		return f.DeleteFleetsOutput, nil
	}
	return &ec2.DeleteFleetsOutput{}, nil
}

func (f *EC2) DescribeFleetsWithContext(_ context.Context, _ *ec2.DescribeFleetsInput, _ ...request.Option) (*ec2.DescribeFleetsOutput, error) {
	f.record("DescribeFleets")
	if f.DescribeFleetsError != nil {
		return nil, f.DescribeFleetsError
	}
	if f.DescribeFleetsOutput != nil {
		return f.DescribeFleetsOutput, nil
	}
	return &ec2.DescribeFleetsOutput{}, nil
}

func (f *EC2) DescribeFleetInstancesWithContext(_ context.Context, _ *ec2.DescribeFleetInstancesInput, _ ...request.Option) (*ec2.DescribeFleetInstancesOutput, error) {
	f.record("DescribeFleetInstances")
	if f.DescribeFleetInstancesError != nil {
		return nil, f.DescribeFleetInstancesError
	}
	if f.DescribeFleetInstancesOutput != nil {
		return f.DescribeFleetInstancesOutput, nil
	}
	return &ec2.DescribeFleetInstancesOutput{}, nil
}

func (f *EC2) RequestSpotFleetWithContext(_ context.Context, _ *ec2.RequestSpotFleetInput, _ ...request.Option) (*ec2.RequestSpotFleetOutput, error) {
	f.record("RequestSpotFleet")
	if f.RequestSpotFleetError != nil {
		return nil, f.RequestSpotFleetError
	}
	if f.RequestSpotFleetOutput != nil {
		return f.RequestSpotFleetOutput, nil
	}
	return &ec2.RequestSpotFleetOutput{SpotFleetRequestId: aws.String("sfr-fake-0001")}, nil
}

func (f *EC2) ModifySpotFleetRequestWithContext(_ context.Context, _ *ec2.ModifySpotFleetRequestInput, _ ...request.Option) (*ec2.ModifySpotFleetRequestOutput, error) {
	f.record("ModifySpotFleetRequest")
	if f.ModifySpotFleetRequestError != nil {
		return nil, f.ModifySpotFleetRequestError
	}
	return &ec2.ModifySpotFleetRequestOutput{Return: aws.Bool(true)}, nil
}

func (f *EC2) CancelSpotFleetRequestsWithContext(_ context.Context, _ *ec2.CancelSpotFleetRequestsInput, _ ...request.Option) (*ec2.CancelSpotFleetRequestsOutput, error) {
	f.record("CancelSpotFleetRequests")
	if f.CancelSpotFleetRequestsError != nil {
		return nil, f.CancelSpotFleetRequestsError
	}
	if f.CancelSpotFleetRequestsOutput != nil {
		return f.CancelSpotFleetRequestsOutput, nil
	}
	return &ec2.CancelSpotFleetRequestsOutput{}, nil
}

func (f *EC2) DescribeSpotFleetRequestsWithContext(_ context.Context, _ *ec2.DescribeSpotFleetRequestsInput, _ ...request.Option) (*ec2.DescribeSpotFleetRequestsOutput, error) {
	f.record("DescribeSpotFleetRequests")
	if f.DescribeSpotFleetRequestsError != nil {
		return nil, f.DescribeSpotFleetRequestsError
	}
	if f.DescribeSpotFleetRequestsOutput != nil {
		return f.DescribeSpotFleetRequestsOutput, nil
	}
	return &ec2.DescribeSpotFleetRequestsOutput{}, nil
}

func (f *EC2) DescribeSpotFleetInstancesWithContext(_ context.Context, _ *ec2.DescribeSpotFleetInstancesInput, _ ...request.Option) (*ec2.DescribeSpotFleetInstancesOutput, error) {
	f.record("DescribeSpotFleetInstances")
	if f.DescribeSpotFleetInstancesError != nil {
		return nil, f.DescribeSpotFleetInstancesError
	}
	if f.DescribeSpotFleetInstancesOutput != nil {
		return f.DescribeSpotFleetInstancesOutput, nil
	}
	return &ec2.DescribeSpotFleetInstancesOutput{}, nil
}

func (f *EC2) CreateLaunchTemplateWithContext(_ context.Context, _ *ec2.CreateLaunchTemplateInput, _ ...request.Option) (*ec2.CreateLaunchTemplateOutput, error) {
	f.record("CreateLaunchTemplate")
	if f.CreateLaunchTemplateError != nil {
		return nil, f.CreateLaunchTemplateError
	}
	if f.CreateLaunchTemplateOutput != nil {
		return f.CreateLaunchTemplateOutput, nil
	}
	return &ec2.CreateLaunchTemplateOutput{
		LaunchTemplate: &ec2.LaunchTemplate{
			LaunchTemplateId: aws.String("lt-fake-0001"),
			LatestVersionNumber: aws.Int64(1),
		},
	}, nil
}

func (f *EC2) CreateLaunchTemplateVersionWithContext(_ context.Context, _ *ec2.CreateLaunchTemplateVersionInput, _ ...request.Option) (*ec2.CreateLaunchTemplateVersionOutput, error) {
	f.record("CreateLaunchTemplateVersion")
	if f.CreateLaunchTemplateVersionError != nil {
		return nil, f.CreateLaunchTemplateVersionError
	}
	if f.CreateLaunchTemplateVersionOutput != nil {
		return f.CreateLaunchTemplateVersionOutput, nil
	}
	return &ec2.CreateLaunchTemplateVersionOutput{
		LaunchTemplateVersion: &ec2.LaunchTemplateVersion{VersionNumber: aws.Int64(2)},
	}, nil
}

func (f *EC2) DescribeLaunchTemplateVersionsWithContext(_ context.Context, _ *ec2.DescribeLaunchTemplateVersionsInput, _ ...request.Option) (*ec2.DescribeLaunchTemplateVersionsOutput, error) {
	f.record("DescribeLaunchTemplateVersions")
	if f.DescribeLaunchTemplateVersionsError != nil {
		return nil, f.DescribeLaunchTemplateVersionsError
	}
	if f.DescribeLaunchTemplateVersionsOutput != nil {
		return f.DescribeLaunchTemplateVersionsOutput, nil
	}
	return &ec2.DescribeLaunchTemplateVersionsOutput{}, nil
}

func (f *EC2) CreateTagsWithContext(_ context.Context, _ *ec2.CreateTagsInput, _ ...request.Option) (*ec2.CreateTagsOutput, error) {
	f.record("CreateTags")
	if f.CreateTagsError != nil {
		return nil, f.CreateTagsError
	}
	return &ec2.CreateTagsOutput{}, nil
}

func defaultReservation(in *ec2.RunInstancesInput) *ec2.Reservation {
	count := 1
	if in.MinCount != nil {
		count = int(*in.MinCount)
	}
	instances := make([]*ec2.Instance, 0, count)
	for i := 0; i < count; i++ {
		instances = append(instances, &ec2.Instance{
			InstanceId:   aws.String(fmt.Sprintf("i-fake%04d", i)),
			InstanceType: in.InstanceType,
			State:        &ec2.InstanceState{Name: aws.String("pending")},
		})
	}
	return &ec2.Reservation{Instances: instances}
}
