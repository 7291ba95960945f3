// Package template implements the Template value object of spec.md §3 — an
// external entity (owned by the scheduler adapter) whose minimum semantics
// this control plane consumes.
package template

import (
	"regexp"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

// ProviderAPI is the provisioning API a Template is hinted to use.
type ProviderAPI string

const (
	APIRunInstances ProviderAPI = "RunInstances"
	APIEC2Fleet     ProviderAPI = "EC2Fleet"
	APISpotFleet    ProviderAPI = "SpotFleet"
	APIASG          ProviderAPI = "ASG"
)

// PriceType is the pricing knob of spec.md §3.
type PriceType string

const (
	PriceOnDemand      PriceType = "ondemand"
	PriceSpot          PriceType = "spot"
	PriceHeterogeneous PriceType = "heterogeneous"
)

// FleetType is EC2Fleet/SpotFleet's lifecycle mode.
type FleetType string

const (
	FleetInstant  FleetType = "instant"
	FleetRequest  FleetType = "request"
	FleetMaintain FleetType = "maintain"
)

// LaunchTemplateRef is an optional pre-existing launch template pin.
type LaunchTemplateRef struct {
	ID      string
	Version string
}

// Template is the minimum semantics this control plane consumes from an
// externally owned template definition, per spec.md §3.
type Template struct {
	TemplateID             string
	ImageID                string
	InstanceType            string
	WeightedInstanceTypes   map[string]float64 // instance type -> weight
	SubnetIDs               []string
	SecurityGroupIDs        []string
	LaunchTemplate          *LaunchTemplateRef
	ProviderAPI             ProviderAPI
	FleetType               FleetType
	PriceType               PriceType
	MaxPrice                float64
	AllocationStrategy      string
	PercentOnDemand         int
	OnDemandWeighted        map[string]float64
	IAMInstanceProfile      string
	KeyPair                 string
	UserData                string
	Tags                    map[string]string
	StorageOptions          map[string]any
	FleetRoleARN            string
	CreatePerRequest        bool
}

var imageIDPattern = regexp.MustCompile(`^ami-[0-9a-f]{8,17}$`)

// ValidationResult separates hard errors from advisory warnings, per spec.md §4.5 VALIDATE_TEMPLATE.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (v ValidationResult) OK() bool { return len(v.Errors) == 0 }

// Validate performs the static validation described in spec.md §4.5: image id
// format, instance-type sanity, required fields. Errors are aggregated so the
// caller sees one validation failure, per spec.md §4.4.1.
func (t *Template) Validate() ValidationResult {
	var result ValidationResult
	if t.TemplateID == "" {
		result.Errors = append(result.Errors, "template_id is required")
	}
	if !imageIDPattern.MatchString(t.ImageID) {
		result.Errors = append(result.Errors, "image_id must match ami-[0-9a-f]{8,17}")
	}
	if t.InstanceType == "" && len(t.WeightedInstanceTypes) == 0 {
		result.Errors = append(result.Errors, "at least one instance type is required")
	}
	if len(t.SubnetIDs) == 0 {
		result.Errors = append(result.Errors, "at least one subnet is required")
	}
	if len(t.SecurityGroupIDs) == 0 {
		result.Errors = append(result.Errors, "at least one security group is required")
	}
	if t.PriceType == PriceHeterogeneous && (t.PercentOnDemand < 0 || t.PercentOnDemand > 100) {
		result.Errors = append(result.Errors, "percent_on_demand must be within [0,100]")
	}
	if t.PriceType == PriceSpot && t.MaxPrice == 0 {
		result.Warnings = append(result.Warnings, "spot pricing configured without max_price")
	}
	return result
}

// AsDomainError converts a failed ValidationResult into one aggregated Validation error.
func (v ValidationResult) AsDomainError() error {
	if v.OK() {
		return nil
	}
	msg := ""
	for i, e := range v.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += e
	}
	return domainerrors.New(domainerrors.Validation, msg, nil)
}

// InstanceTypes returns the set of instance types a Template may launch,
// falling back to the single primary InstanceType when no weighted map is set.
func (t *Template) InstanceTypes() []string {
	if len(t.WeightedInstanceTypes) == 0 {
		if t.InstanceType == "" {
			return nil
		}
		return []string{t.InstanceType}
	}
	out := make([]string, 0, len(t.WeightedInstanceTypes))
	for it := range t.WeightedInstanceTypes {
		out = append(out, it)
	}
	return out
}
