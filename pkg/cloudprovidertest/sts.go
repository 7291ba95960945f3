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
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
)

// STS is a fake stsiface.STSAPI, used by the provider strategy's
// HEALTH_CHECK operation and its account-reachability probe.
type STS struct {
	stsiface.STSAPI

	mu                        sync.Mutex
	calls                     int
	GetCallerIdentityError    error
	GetCallerIdentityOutput   *sts.GetCallerIdentityOutput
}

func NewSTS() *STS { return &STS{} }

func (f *STS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *STS) GetCallerIdentityWithContext(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...request.Option) (*sts.GetCallerIdentityOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.GetCallerIdentityError != nil {
		return nil, f.GetCallerIdentityError
	}
	if f.GetCallerIdentityOutput != nil {
		return f.GetCallerIdentityOutput, nil
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String("000000000000")}, nil
}
