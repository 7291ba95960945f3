// Package schedulercontract implements the upstream scheduler contract of
// spec.md §6: template input fields, machine/request/status output DTOs,
// and the translation between them and this control plane's domain
// aggregates. The contract is abstract (any concrete scheduler adapter must
// round-trip these fields bit-exactly) — grounded on the original's
// `domain.template.value_objects`/`domain.machine.value_objects` DTO shape
// (see DESIGN.md), renamed to Go idiom (exported struct fields with JSON
// tags instead of dataclasses).
package schedulercontract

import (
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

// TemplateInput is the minimum template shape a scheduler adapter supplies,
// spec.md §6.
type TemplateInput struct {
	TemplateID        string            `json:"templateId"`
	ImageID           string            `json:"imageId"`
	VMType            string            `json:"vmType"`
	MaxNumber         int               `json:"maxNumber"`
	SubnetIDs         []string          `json:"subnetIds"`
	SecurityGroupIDs  []string          `json:"securityGroupIds"`
	ProviderAPI        string           `json:"providerApi"`
	PriceType         string            `json:"priceType,omitempty"`
	MaxPrice          float64           `json:"maxPrice,omitempty"`
	AllocationStrategy string           `json:"allocationStrategy,omitempty"`
	FleetRoleARN      string            `json:"fleetRoleArn,omitempty"`
	KeyPair           string            `json:"keyPair,omitempty"`
	IAMInstanceProfile string           `json:"iamInstanceProfile,omitempty"`
	UserData          string            `json:"userData,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
}

// ToDomainTemplate adapts the scheduler's wire shape into the internal
// template.Template value object.
func ToDomainTemplate(in TemplateInput) *template.Template {
	return &template.Template{
		TemplateID:        in.TemplateID,
		ImageID:           in.ImageID,
		InstanceType:      in.VMType,
		SubnetIDs:         in.SubnetIDs,
		SecurityGroupIDs:  in.SecurityGroupIDs,
		ProviderAPI:       template.ProviderAPI(in.ProviderAPI),
		PriceType:         template.PriceType(in.PriceType),
		MaxPrice:          in.MaxPrice,
		AllocationStrategy: in.AllocationStrategy,
		FleetRoleARN:      in.FleetRoleARN,
		KeyPair:           in.KeyPair,
		IAMInstanceProfile: in.IAMInstanceProfile,
		UserData:          in.UserData,
		Tags:              in.Tags,
	}
}

// MachineOutput is the per-instance shape of spec.md §6.
type MachineOutput struct {
	MachineID     string            `json:"machineId"`
	Name          string            `json:"name"`
	Result        string            `json:"result"`
	Status        string            `json:"status"`
	PrivateIP     string            `json:"privateIpAddress,omitempty"`
	PublicIP      string            `json:"publicIpAddress,omitempty"`
	LaunchTime    int64             `json:"launchtime,omitempty"`
	InstanceType  string            `json:"instanceType,omitempty"`
	PriceType     string            `json:"priceType,omitempty"`
	Message       string            `json:"message,omitempty"`
	InstanceTags  map[string]string `json:"instanceTags,omitempty"`
	CloudHostID   string            `json:"cloudHostId,omitempty"`
}

// ToMachineOutput projects a domain Machine into the scheduler wire shape.
func ToMachineOutput(m *machine.Machine, priceType, message string) MachineOutput {
	out := MachineOutput{
		MachineID:    m.InstanceID,
		Name:         m.InstanceID,
		Result:       m.SchedulerResult(),
		Status:       m.SchedulerStatus(),
		PrivateIP:    m.PrivateIP,
		PublicIP:     m.PublicIP,
		InstanceType: m.InstanceType,
		PriceType:    priceType,
		Message:      message,
		CloudHostID:  m.InstanceID,
	}
	if m.LaunchTime != nil {
		out.LaunchTime = m.LaunchTime.Unix()
	}
	if tags, ok := m.Metadata["tags"].(map[string]string); ok {
		out.InstanceTags = tags
	}
	return out
}

// CreateRequestResponse is spec.md §6's `{requestId, message}` response to
// a CREATE_INSTANCES / RETURN submission.
type CreateRequestResponse struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// RequestStatusEntry is one element of spec.md §6's bulk status response.
type RequestStatusEntry struct {
	RequestID string          `json:"requestId"`
	Status    string          `json:"status"`
	Machines  []MachineOutput `json:"machines"`
	Message   string          `json:"message"`
}

// RequestStatusResponse is spec.md §6's `{requests:[...]}` envelope.
type RequestStatusResponse struct {
	Requests []RequestStatusEntry `json:"requests"`
}

// schedulerStatus maps the internal Request.Status vocabulary onto the
// upstream `{running, complete, complete_with_error}` vocabulary.
func schedulerStatus(r *request.Request) string {
	switch r.Status {
	case request.StatusCompleted:
		return "complete"
	case request.StatusPartial, request.StatusFailed:
		return "complete_with_error"
	default:
		return "running"
	}
}

// ToRequestStatusEntry projects a Request and its discovered machines into
// the upstream status shape.
func ToRequestStatusEntry(r *request.Request, machines []*machine.Machine) RequestStatusEntry {
	message, _ := r.Metadata[request.MetaErrorMessage].(string)
	outs := make([]MachineOutput, 0, len(machines))
	for _, m := range machines {
		outs = append(outs, ToMachineOutput(m, "", ""))
	}
	return RequestStatusEntry{
		RequestID: r.ID,
		Status:    schedulerStatus(r),
		Machines:  outs,
		Message:   message,
	}
}
