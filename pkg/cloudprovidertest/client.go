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

import "github.com/awslabs/host-factory-controlplane/pkg/cloudclient"

// NewClient wires fresh EC2/AutoScaling/STS fakes into a cloudclient.Client,
// the single substitution point every handler/strategy/launch-template test
// needs to run against a fake AWS backend instead of a real session.
func NewClient() (*cloudclient.Client, *EC2, *AutoScaling, *STS) {
	ec2Fake := NewEC2()
	asgFake := NewAutoScaling()
	stsFake := NewSTS()
	client := cloudclient.NewFromInterfaces("us-east-1", ec2Fake, asgFake, stsFake)
	return client, ec2Fake, asgFake, stsFake
}
