package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestRejectsNonPositiveCount(t *testing.T) {
	_, err := New("tmpl-1", 0)
	require.Error(t, err)
	_, err = New("tmpl-1", -1)
	require.Error(t, err)
}

func TestNewRequestEmitsRequestCreated(t *testing.T) {
	r, err := New("tmpl-1", 3)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	evts := r.PullEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "RequestCreated", evts[0].EventName())
	assert.Empty(t, r.PullEvents()) // drained
}

func TestPendingCannotJumpDirectlyToTerminal(t *testing.T) {
	r, err := New("tmpl-1", 2)
	require.NoError(t, err)
	r.PullEvents()

	err = r.ResolveStatus(2, "should not be reachable from PENDING")
	require.Error(t, err)
	assert.Equal(t, StatusPending, r.Status)
}

func TestFullAcquireLifecycleCompleted(t *testing.T) {
	r, err := New("tmpl-1", 2)
	require.NoError(t, err)
	r.PullEvents()

	require.NoError(t, r.MarkDispatched())
	assert.Equal(t, StatusInProgress, r.Status)

	require.NoError(t, r.ResolveStatus(2, "2/2 instances discovered"))
	assert.Equal(t, StatusCompleted, r.Status)
	assert.True(t, r.Status.Terminal())
	assert.NotNil(t, r.CompletedAt)

	evts := r.PullEvents()
	require.Len(t, evts, 2)
	assert.Equal(t, "RequestStatusChanged", evts[0].EventName())
	assert.Equal(t, "RequestCompleted", evts[1].EventName())
}

func TestPartialWhenFewerInstancesThanRequested(t *testing.T) {
	r, err := New("tmpl-1", 4)
	require.NoError(t, err)
	r.PullEvents()
	require.NoError(t, r.MarkDispatched())

	require.NoError(t, r.ResolveStatus(2, "2/4 instances discovered"))
	assert.Equal(t, StatusPartial, r.Status)
}

func TestFailedWhenZeroInstancesDiscovered(t *testing.T) {
	r, err := New("tmpl-1", 4)
	require.NoError(t, err)
	r.PullEvents()
	require.NoError(t, r.MarkDispatched())

	require.NoError(t, r.ResolveStatus(0, "no instances discovered"))
	assert.Equal(t, StatusFailed, r.Status)
}

func TestFleetErrorsForceCompleteCountIntoPartial(t *testing.T) {
	r, err := New("tmpl-1", 2)
	require.NoError(t, err)
	r.PullEvents()
	require.NoError(t, r.MarkDispatched())

	r.SetFleetErrors([]FleetError{{ErrorCode: "InsufficientCapacity", ErrorMessage: "no capacity"}})
	require.NoError(t, r.ResolveStatus(2, "2/2 instances discovered, with errors"))
	assert.Equal(t, StatusPartial, r.Status)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	r, err := New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, r.Cancel("operator requested cancellation"))
	assert.Equal(t, StatusCancelled, r.Status)
	assert.True(t, r.Status.Terminal())
}

func TestCancelFailsOnTerminalRequest(t *testing.T) {
	r, err := New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, r.MarkDispatched())
	require.NoError(t, r.ResolveStatus(1, "done"))

	err = r.Cancel("too late")
	require.Error(t, err)
}

func TestMarkCompletedDryRunShortCircuitsFromPending(t *testing.T) {
	r, err := New("tmpl-1", 3)
	require.NoError(t, err)
	require.NoError(t, r.MarkCompletedDryRun())
	assert.Equal(t, StatusCompleted, r.Status)
	assert.True(t, r.IsDryRun())
}

func TestMarkFailedFromPendingPassesThroughInProgress(t *testing.T) {
	r, err := New("tmpl-1", 1)
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed("ProvisioningError", "boom"))
	assert.Equal(t, StatusFailed, r.Status)
}

func TestNewReturnRequiresMachineIDs(t *testing.T) {
	_, err := NewReturn(nil)
	require.Error(t, err)

	r, err := NewReturn([]string{"i-1", "i-2"})
	require.NoError(t, err)
	assert.Equal(t, TypeReturn, r.RequestType)
	assert.Equal(t, 2, r.RequestedCount)
	assert.Equal(t, []string{"i-1", "i-2"}, r.InstanceIDs)
}
