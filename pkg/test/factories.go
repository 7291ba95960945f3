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

package test

import (
	"strings"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

// RandomName generates a lowercase silly name, the teacher's own
// randomdata.SillyName() convention (pkg/apis/v1/nodepool_budgets_test.go)
// reused here for template/request ids instead of NodePool names.
func RandomName() string {
	return strings.ToLower(randomdata.SillyName())
}

// TemplateOption customizes a test Template fixture.
type TemplateOption func(*template.Template)

// Template builds a valid RunInstances template fixture, overridable via
// TemplateOptions. Mirrors the teacher's functional-options-over-zero-value
// test fixture convention (pkg/test/nodeclaims.go-equivalent builders).
func Template(opts ...TemplateOption) *template.Template {
	t := &template.Template{
		TemplateID:       RandomName(),
		ImageID:          "ami-0123456789abcdef0",
		InstanceType:     "m5.large",
		SubnetIDs:        []string{"subnet-0123456789abcdef0"},
		SecurityGroupIDs: []string{"sg-0123456789abcdef0"},
		ProviderAPI:      template.APIRunInstances,
		PriceType:        template.PriceOnDemand,
		Tags:             map[string]string{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func WithProviderAPI(api template.ProviderAPI) TemplateOption {
	return func(t *template.Template) { t.ProviderAPI = api }
}

func WithFleetType(ft template.FleetType) TemplateOption {
	return func(t *template.Template) { t.FleetType = ft }
}

func WithPriceType(pt template.PriceType) TemplateOption {
	return func(t *template.Template) { t.PriceType = pt }
}

// MachineOption customizes a test Machine fixture.
type MachineOption func(*machine.Machine)

// Machine builds a RUNNING machine fixture owned by requestID/templateID.
func Machine(requestID, templateID string, opts ...MachineOption) *machine.Machine {
	m := machine.New("i-"+uuid.NewString()[:17], requestID, templateID, "aws")
	m.Status = machine.StatusRunning
	m.InstanceType = "m5.large"
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func WithMachineStatus(s machine.Status) MachineOption {
	return func(m *machine.Machine) { m.Status = s }
}
