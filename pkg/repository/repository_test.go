package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

func TestInMemoryRequestsSaveFindList(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRequests()

	r, err := request.New("tmpl-1", 3)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, r))

	got, err := store.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.FindByID(ctx, "does-not-exist")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.NotFound))
}

func TestInMemoryMachinesGroupsByRequest(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryMachines()

	m1 := machine.New("i-1", "req-1", "tmpl-1", "aws")
	m2 := machine.New("i-2", "req-1", "tmpl-1", "aws")
	m3 := machine.New("i-3", "req-2", "tmpl-1", "aws")
	require.NoError(t, store.Save(ctx, m1))
	require.NoError(t, store.Save(ctx, m2))
	require.NoError(t, store.Save(ctx, m3))

	byReq1, err := store.ListByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, byReq1, 2)

	byReq2, err := store.ListByRequestID(ctx, "req-2")
	require.NoError(t, err)
	assert.Len(t, byReq2, 1)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInMemoryTemplatesSaveFind(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTemplates()
	tmpl := &template.Template{TemplateID: "tmpl-1", ProviderAPI: template.APIRunInstances}
	require.NoError(t, store.Save(ctx, tmpl))

	got, err := store.FindByID(ctx, "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, template.APIRunInstances, got.ProviderAPI)
}

func TestJSONFileRequestsRoundTripsThroughDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "requests.json")
	store := NewJSONFileRequests(path)

	r, err := request.New("tmpl-1", 2)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, r))

	// A fresh store pointed at the same path must see what was flushed,
	// proving persistence survives process restarts rather than just
	// living in the first store's memory.
	reloaded := NewJSONFileRequests(path)
	got, err := reloaded.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.TemplateID, got.TemplateID)
	assert.Equal(t, r.RequestedCount, got.RequestedCount)

	list, err := reloaded.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestJSONFileMachinesFilterByRequestID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "machines.json")
	store := NewJSONFileMachines(path)

	require.NoError(t, store.Save(ctx, machine.New("i-1", "req-1", "tmpl-1", "aws")))
	require.NoError(t, store.Save(ctx, machine.New("i-2", "req-2", "tmpl-1", "aws")))

	byReq, err := store.ListByRequestID(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, byReq, 1)
	assert.Equal(t, "i-1", byReq[0].InstanceID)
}

func TestJSONFileTemplatesNotFound(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "templates.json")
	store := NewJSONFileTemplates(path)

	_, err := store.FindByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.NotFound))
}
