package ecs_test

import (
	"testing"

	"github.com/kestrelworks/ecs"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/stretchr/testify/require"
)

func TestEntityIDTempAndZero(t *testing.T) {
	var zero ecs.EntityID
	require.True(t, zero.IsZero())
	require.False(t, zero.IsTemp())

	real := ecs.EntityID(7)
	require.False(t, real.IsZero())
	require.False(t, real.IsTemp())

	temp := ecs.EntityID(-3)
	require.False(t, temp.IsZero())
	require.True(t, temp.IsTemp())
}

func TestWorldCreateEntityAssignsUniqueIDs(t *testing.T) {
	world := ecs.NewWorld()

	a, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)
	b, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Equal(t, 2, world.EntityCount())
}

func TestWorldDestroyEntityRemovesIt(t *testing.T) {
	world := ecs.NewWorld()
	id, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, world.EntityCount())

	require.NoError(t, world.DestroyEntity(id, false))
	require.Equal(t, 0, world.EntityCount())

	// Destroying an already-unknown entity is a silent no-op.
	require.NoError(t, world.DestroyEntity(id, false))
}
