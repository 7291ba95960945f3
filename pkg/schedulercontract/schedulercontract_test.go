package schedulercontract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

func TestToDomainTemplateTranslatesFields(t *testing.T) {
	in := TemplateInput{
		TemplateID:       "tmpl-1",
		ImageID:          "ami-1",
		VMType:           "m5.large",
		SubnetIDs:        []string{"subnet-1"},
		SecurityGroupIDs: []string{"sg-1"},
		ProviderAPI:      "EC2Fleet",
		PriceType:        "spot",
		MaxPrice:         0.5,
	}

	out := ToDomainTemplate(in)
	assert.Equal(t, "tmpl-1", out.TemplateID)
	assert.Equal(t, "m5.large", out.InstanceType)
	assert.Equal(t, template.ProviderAPI("EC2Fleet"), out.ProviderAPI)
	assert.Equal(t, template.PriceType("spot"), out.PriceType)
	assert.Equal(t, 0.5, out.MaxPrice)
}

func TestToMachineOutputProjectsStatusAndLaunchTime(t *testing.T) {
	m := machine.New("i-1", "req-1", "tmpl-1", "aws")
	m.Status = machine.StatusRunning
	launch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.LaunchTime = &launch

	out := ToMachineOutput(m, "ondemand", "provisioned")
	assert.Equal(t, "i-1", out.MachineID)
	assert.Equal(t, "running", out.Status)
	assert.Equal(t, "executing", out.Result)
	assert.Equal(t, "ondemand", out.PriceType)
	assert.Equal(t, launch.Unix(), out.LaunchTime)
}

func TestToRequestStatusEntryMapsTerminalStatuses(t *testing.T) {
	r, err := request.New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, r.MarkDispatched())
	require.NoError(t, r.ResolveStatus(1, "done"))

	entry := ToRequestStatusEntry(r, nil)
	assert.Equal(t, "complete", entry.Status)
	assert.Empty(t, entry.Machines)
}

func TestToRequestStatusEntryMapsPartialAndFailedToCompleteWithError(t *testing.T) {
	r, err := request.New("tmpl-1", 2)
	require.NoError(t, err)
	require.NoError(t, r.MarkDispatched())
	require.NoError(t, r.ResolveStatus(1, "partial"))

	entry := ToRequestStatusEntry(r, nil)
	assert.Equal(t, "complete_with_error", entry.Status)

	r2, err := request.New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, r2.MarkFailed("ProvisioningError", "no capacity"))

	entry2 := ToRequestStatusEntry(r2, nil)
	assert.Equal(t, "complete_with_error", entry2.Status)
	assert.Equal(t, "no capacity", entry2.Message)
}

func TestToRequestStatusEntryRunningWhilePending(t *testing.T) {
	r, err := request.New("tmpl-1", 1)
	require.NoError(t, err)

	entry := ToRequestStatusEntry(r, nil)
	assert.Equal(t, "running", entry.Status)
}
