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

package cloudprovidertest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/autoscaling/autoscalingiface"
)

// AutoScaling is a fake autoscalingiface.AutoScalingAPI, mirroring EC2's
// call-counting-plus-injectable-error shape.
type AutoScaling struct {
	autoscalingiface.AutoScalingAPI

	mu    sync.Mutex
	calls map[string]int

	CreateAutoScalingGroupError error

	UpdateAutoScalingGroupError error

	DeleteAutoScalingGroupError error

	TerminateInstanceInAutoScalingGroupOutput *autoscaling.TerminateInstanceInAutoScalingGroupOutput
	TerminateInstanceInAutoScalingGroupError  error

	DescribeAutoScalingGroupsOutput *autoscaling.DescribeAutoScalingGroupsOutput
	DescribeAutoScalingGroupsError  error
}

func NewAutoScaling() *AutoScaling {
	return &AutoScaling{calls: map[string]int{}}
}

func (f *AutoScaling) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *AutoScaling) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *AutoScaling) CreateAutoScalingGroupWithContext(_ context.Context, _ *autoscaling.CreateAutoScalingGroupInput, _ ...request.Option) (*autoscaling.CreateAutoScalingGroupOutput, error) {
	f.record("CreateAutoScalingGroup")
	if f.CreateAutoScalingGroupError != nil {
		return nil, f.CreateAutoScalingGroupError
	}
	return &autoscaling.CreateAutoScalingGroupOutput{}, nil
}

func (f *AutoScaling) UpdateAutoScalingGroupWithContext(_ context.Context, _ *autoscaling.UpdateAutoScalingGroupInput, _ ...request.Option) (*autoscaling.UpdateAutoScalingGroupOutput, error) {
	f.record("UpdateAutoScalingGroup")
	if f.UpdateAutoScalingGroupError != nil {
		return nil, f.UpdateAutoScalingGroupError
	}
	return &autoscaling.UpdateAutoScalingGroupOutput{}, nil
}

func (f *AutoScaling) DeleteAutoScalingGroupWithContext(_ context.Context, _ *autoscaling.DeleteAutoScalingGroupInput, _ ...request.Option) (*autoscaling.DeleteAutoScalingGroupOutput, error) {
	f.record("DeleteAutoScalingGroup")
	if f.DeleteAutoScalingGroupError != nil {
		return nil, f.DeleteAutoScalingGroupError
	}
	return &autoscaling.DeleteAutoScalingGroupOutput{}, nil
}

func (f *AutoScaling) TerminateInstanceInAutoScalingGroupWithContext(_ context.Context, _ *autoscaling.TerminateInstanceInAutoScalingGroupInput, _ ...request.Option) (*autoscaling.TerminateInstanceInAutoScalingGroupOutput, error) {
	f.record("TerminateInstanceInAutoScalingGroup")
	if f.TerminateInstanceInAutoScalingGroupError != nil {
		return nil, f.TerminateInstanceInAutoScalingGroupError
	}
	if f.TerminateInstanceInAutoScalingGroupOutput != nil {
		return f.TerminateInstanceInAutoScalingGroupOutput, nil
	}
	return &autoscaling.TerminateInstanceInAutoScalingGroupOutput{Activity: &autoscaling.Activity{StatusCode: aws.String("InProgress")}}, nil
}

func (f *AutoScaling) DescribeAutoScalingGroupsWithContext(_ context.Context, _ *autoscaling.DescribeAutoScalingGroupsInput, _ ...request.Option) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	f.record("DescribeAutoScalingGroups")
	if f.DescribeAutoScalingGroupsError != nil {
		return nil, f.DescribeAutoScalingGroupsError
	}
	if f.DescribeAutoScalingGroupsOutput != nil {
		return f.DescribeAutoScalingGroupsOutput, nil
	}
	return &autoscaling.DescribeAutoScalingGroupsOutput{}, nil
}
