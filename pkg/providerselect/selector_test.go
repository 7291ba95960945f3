package providerselect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinCyclesThroughCandidates(t *testing.T) {
	registry := NewRegistry(
		NewInstance("a", "aws", 0, 1, nil),
		NewInstance("b", "aws", 0, 1, nil),
	)
	selector := NewSelector(registry, PolicyRoundRobin)

	var picks []string
	for i := 0; i < 4; i++ {
		sel, err := selector.Select(context.Background(), "")
		require.NoError(t, err)
		picks = append(picks, sel.Instance.Name)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, picks)
}

func TestWeightedRoundRobinFavorsHeavierInstance(t *testing.T) {
	registry := NewRegistry(
		NewInstance("light", "aws", 0, 1, nil),
		NewInstance("heavy", "aws", 0, 3, nil),
	)
	selector := NewSelector(registry, PolicyWeightedRoundRobin)

	counts := map[string]int{}
	for i := 0; i < 8; i++ {
		sel, err := selector.Select(context.Background(), "")
		require.NoError(t, err)
		counts[sel.Instance.Name]++
	}
	assert.Equal(t, 6, counts["heavy"])
	assert.Equal(t, 2, counts["light"])
}

func TestHealthBasedSkipsUnhealthyInstances(t *testing.T) {
	unhealthy := NewInstance("a", "aws", 0, 1, nil)
	unhealthy.SetHealthy(false)
	healthy := NewInstance("b", "aws", 5, 1, nil)
	registry := NewRegistry(unhealthy, healthy)
	selector := NewSelector(registry, PolicyHealthBased)

	sel, err := selector.Select(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "b", sel.Instance.Name)
}

func TestHealthBasedErrorsWhenNoneHealthy(t *testing.T) {
	a := NewInstance("a", "aws", 0, 1, nil)
	a.SetHealthy(false)
	registry := NewRegistry(a)
	selector := NewSelector(registry, PolicyHealthBased)

	_, err := selector.Select(context.Background(), "")
	require.Error(t, err)
}

func TestCapabilityBasedFiltersByTemplateAPI(t *testing.T) {
	registry := NewRegistry(
		NewInstance("runinstances-only", "aws", 0, 1, []string{"RunInstances"}),
		NewInstance("fleet-capable", "aws", 10, 1, []string{"RunInstances", "EC2Fleet"}),
	)
	selector := NewSelector(registry, PolicyCapabilityBased)

	sel, err := selector.Select(context.Background(), "EC2Fleet")
	require.NoError(t, err)
	assert.Equal(t, "fleet-capable", sel.Instance.Name)
}

func TestCapabilityBasedErrorsWhenNoInstanceDeclaresCapability(t *testing.T) {
	registry := NewRegistry(NewInstance("a", "aws", 0, 1, []string{"RunInstances"}))
	selector := NewSelector(registry, PolicyCapabilityBased)

	_, err := selector.Select(context.Background(), "SpotFleet")
	require.Error(t, err)
}

func TestSelectErrorsWhenRegistryEmpty(t *testing.T) {
	selector := NewSelector(NewRegistry(), PolicyRoundRobin)
	_, err := selector.Select(context.Background(), "")
	require.Error(t, err)
}

func TestRegistryEnabledFiltersDisabledInstances(t *testing.T) {
	enabled := NewInstance("on", "aws", 0, 1, nil)
	disabled := NewInstance("off", "aws", 0, 1, nil)
	disabled.Enabled = false
	registry := NewRegistry(enabled, disabled)

	assert.Len(t, registry.Enabled(), 1)
	assert.Len(t, registry.All(), 2)
}
