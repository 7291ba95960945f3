package uow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/events"
	"github.com/awslabs/host-factory-controlplane/pkg/repository"
)

func newTestFactory(publisher *events.Publisher) *Factory {
	return NewFactory(
		repository.NewInMemoryRequests(),
		repository.NewInMemoryMachines(),
		repository.NewInMemoryTemplates(),
		publisher,
	)
}

func TestCommitPublishesCollectedEvents(t *testing.T) {
	publisher := events.NewPublisher()
	var seen []string
	events.Subscribe[events.RequestCreated](publisher, func(_ context.Context, e events.RequestCreated) {
		seen = append(seen, e.RequestID)
	})

	f := newTestFactory(publisher)
	r, err := request.New("tmpl-1", 2)
	require.NoError(t, err)

	u := f.New()
	require.NoError(t, u.Requests.Save(context.Background(), r))
	u.Collect(r)
	u.Commit(context.Background())

	assert.True(t, u.Committed())
	require.Len(t, seen, 1)
	assert.Equal(t, r.ID, seen[0])
}

func TestUncommittedUnitNeverPublishes(t *testing.T) {
	publisher := events.NewPublisher()
	calls := 0
	events.Subscribe[events.RequestCreated](publisher, func(_ context.Context, _ events.RequestCreated) {
		calls++
	})

	f := newTestFactory(publisher)
	r, err := request.New("tmpl-1", 1)
	require.NoError(t, err)

	u := f.New()
	u.Collect(r)
	// deliberately never call Commit, simulating a rolled-back path

	assert.False(t, u.Committed())
	assert.Equal(t, 0, calls)
}

func TestRunCommitsOnSuccessAndSkipsOnError(t *testing.T) {
	publisher := events.NewPublisher()
	calls := 0
	events.Subscribe[events.RequestCreated](publisher, func(_ context.Context, _ events.RequestCreated) {
		calls++
	})
	f := newTestFactory(publisher)

	err := f.Run(context.Background(), func(u *UnitOfWork) error {
		r, rerr := request.New("tmpl-1", 1)
		require.NoError(t, rerr)
		u.Collect(r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	sentinel := assert.AnError
	err = f.Run(context.Background(), func(u *UnitOfWork) error {
		r, rerr := request.New("tmpl-1", 1)
		require.NoError(t, rerr)
		u.Collect(r)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls, "the failed run must not publish its collected event")
}

func TestRecordAddsAdHocEvents(t *testing.T) {
	publisher := events.NewPublisher()
	calls := 0
	events.Subscribe[events.MachineDiscovered](publisher, func(_ context.Context, _ events.MachineDiscovered) {
		calls++
	})
	f := newTestFactory(publisher)

	u := f.New()
	m := machine.New("i-1", "req-1", "tmpl-1", "aws")
	require.NoError(t, u.Machines.Save(context.Background(), m))
	u.Record(events.MachineDiscovered{RequestID: "req-1", MachineID: "i-1"})
	u.Commit(context.Background())

	assert.Equal(t, 1, calls)
}
