package cqrs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
)

type createWidgetCommand struct{ Name string }
type widgetCreated struct{ Name string }

type listWidgetsQuery struct{}

func TestCommandBusRoutesByConcreteType(t *testing.T) {
	bus := NewCommandBus()
	Register(bus, func(_ context.Context, cmd createWidgetCommand) (any, error) {
		return widgetCreated{Name: cmd.Name}, nil
	})

	result, err := bus.Execute(context.Background(), createWidgetCommand{Name: "gizmo"})
	require.NoError(t, err)
	assert.Equal(t, widgetCreated{Name: "gizmo"}, result)
}

func TestCommandBusUnknownTypeIsConfigurationError(t *testing.T) {
	bus := NewCommandBus()
	_, err := bus.Execute(context.Background(), createWidgetCommand{Name: "gizmo"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.Configuration))
}

func TestQueryBusRoutesByConcreteType(t *testing.T) {
	bus := NewQueryBus()
	RegisterQuery(bus, func(_ context.Context, _ listWidgetsQuery) (any, error) {
		return []string{"a", "b"}, nil
	})

	result, err := bus.Execute(context.Background(), listWidgetsQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, result)
}

func TestQueryBusUnknownTypeIsConfigurationError(t *testing.T) {
	bus := NewQueryBus()
	_, err := bus.Execute(context.Background(), listWidgetsQuery{})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.Configuration))
}

func TestSecondRegistrationOverwritesHandler(t *testing.T) {
	bus := NewCommandBus()
	Register(bus, func(_ context.Context, cmd createWidgetCommand) (any, error) {
		return "first", nil
	})
	Register(bus, func(_ context.Context, cmd createWidgetCommand) (any, error) {
		return "second", nil
	})

	result, err := bus.Execute(context.Background(), createWidgetCommand{})
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}
