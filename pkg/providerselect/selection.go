package providerselect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

// Policy is spec.md §4.7 step 3's provider-selection policy vocabulary.
type Policy string

const (
	PolicyRoundRobin         Policy = "ROUND_ROBIN"
	PolicyWeighted           Policy = "WEIGHTED"
	PolicyWeightedRoundRobin Policy = "WEIGHTED_ROUND_ROBIN"
	PolicyHealthBased        Policy = "HEALTH_BASED"
	PolicyCapabilityBased    Policy = "CAPABILITY_BASED"
)

// Selection is the outcome of a Select call, feeding Request.StampProvider.
type Selection struct {
	Instance   *Instance
	Reason     string
	Confidence float64
}

// Selector chooses a provider instance for a template, per spec.md §4.7.
type Selector struct {
	registry *Registry
	policy   Policy

	mu        sync.Mutex
	rrCursor  int64
	wrrWeight map[string]int // smooth weighted round robin's running weight, by instance name
}

func NewSelector(registry *Registry, policy Policy) *Selector {
	return &Selector{registry: registry, policy: policy, wrrWeight: map[string]int{}}
}

// Select implements spec.md §4.7 step 3: pick a provider instance for
// templateAPI (the template's provider_api hint, used by CAPABILITY_BASED).
func (s *Selector) Select(ctx context.Context, templateAPI string) (*Selection, error) {
	candidates := s.registry.Enabled()
	if len(candidates) == 0 {
		return nil, domainerrors.New(domainerrors.Configuration, "no provider instances registered", nil)
	}

	switch s.policy {
	case PolicyRoundRobin:
		return s.roundRobin(candidates)
	case PolicyWeighted, PolicyWeightedRoundRobin:
		return s.weightedRoundRobin(candidates)
	case PolicyHealthBased:
		return s.healthBased(candidates)
	case PolicyCapabilityBased:
		return s.capabilityBased(candidates, templateAPI)
	default:
		return nil, domainerrors.New(domainerrors.Configuration, fmt.Sprintf("unknown selection policy %q", s.policy), nil)
	}
}

func (s *Selector) roundRobin(candidates []*Instance) (*Selection, error) {
	idx := atomic.AddInt64(&s.rrCursor, 1) - 1
	chosen := candidates[int(idx)%len(candidates)]
	return &Selection{Instance: chosen, Reason: "round_robin", Confidence: 1.0 / float64(len(candidates))}, nil
}

// weightedRoundRobin implements a smooth weighted round robin (each call
// advances every candidate's running weight by its configured Weight, then
// picks and decrements the highest), per original_source/'s provider
// registry (see SPEC_FULL.md "Supplemented features").
func (s *Selector) weightedRoundRobin(candidates []*Instance) (*Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalWeight := 0
	var best *Instance
	bestRunning := -1
	for _, inst := range candidates {
		w := inst.Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w
		s.wrrWeight[inst.Name] += w
		if s.wrrWeight[inst.Name] > bestRunning {
			bestRunning = s.wrrWeight[inst.Name]
			best = inst
		}
	}
	s.wrrWeight[best.Name] -= totalWeight

	confidence := 1.0
	if totalWeight > 0 {
		w := best.Weight
		if w <= 0 {
			w = 1
		}
		confidence = float64(w) / float64(totalWeight)
	}
	return &Selection{Instance: best, Reason: "weighted_round_robin", Confidence: confidence}, nil
}

func (s *Selector) healthBased(candidates []*Instance) (*Selection, error) {
	healthy := lo.Filter(candidates, func(inst *Instance, _ int) bool { return inst.Healthy() })
	if len(healthy) == 0 {
		return nil, domainerrors.New(domainerrors.ResourceInUse, "no healthy provider instances available", nil)
	}
	best := healthy[0]
	for _, inst := range healthy[1:] {
		if inst.Priority > best.Priority {
			best = inst
		}
	}
	return &Selection{Instance: best, Reason: "health_based", Confidence: 1.0}, nil
}

func (s *Selector) capabilityBased(candidates []*Instance, templateAPI string) (*Selection, error) {
	capable := lo.Filter(candidates, func(inst *Instance, _ int) bool {
		return templateAPI == "" || inst.HasCapability(templateAPI)
	})
	if len(capable) == 0 {
		return nil, domainerrors.New(domainerrors.Validation,
			fmt.Sprintf("no provider instance declares capability %q", templateAPI), nil)
	}
	best := capable[0]
	for _, inst := range capable[1:] {
		if inst.Priority > best.Priority {
			best = inst
		}
	}
	confidence := 1.0 / float64(len(capable))
	return &Selection{Instance: best, Reason: fmt.Sprintf("capability_based:%s", templateAPI), Confidence: confidence}, nil
}
