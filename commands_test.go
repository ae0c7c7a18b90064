package ecs_test

import (
	"testing"

	"github.com/kestrelworks/ecs"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/stretchr/testify/require"
)

func TestCreateEntityCommandBindsTempID(t *testing.T) {
	world := ecs.NewWorld()
	target := world.NewTempID()
	cmd := ecs.CreateEntityCommand{Target: target, Types: typeset.TypeSet{}}

	require.NoError(t, world.ApplyCommands([]ecs.Command{cmd}))

	real := world.Resolve(target)
	require.False(t, real.IsTemp())
	require.Equal(t, 1, world.EntityCount())
}

func TestDestroyEntityCommand(t *testing.T) {
	world := ecs.NewWorld()
	id, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)

	cmd := ecs.DestroyEntityCommand{Entity: id}
	require.NoError(t, cmd.Apply(world))
	require.Equal(t, 0, world.EntityCount())
}

func TestAddRemoveComponentCommands(t *testing.T) {
	reg := registry.New()
	compType, err := reg.Register("comp", 8, 8, registry.Regular, nil, nil)
	require.NoError(t, err)
	world := ecs.NewWorld(ecs.WithRegistry(reg))

	id, err := world.CreateEntity(typeset.TypeSet{}, nil, nil)
	require.NoError(t, err)

	value := make([]byte, 8)
	value[0] = 99
	add := ecs.AddComponentCommand{Entity: id, Type: compType, Value: value}
	require.NoError(t, add.Apply(world))
	require.True(t, world.HasAll(id, typeset.Of(reg.Count(), compType)))
	require.Equal(t, byte(99), world.GetComponent(id, compType)[0])

	remove := ecs.RemoveComponentsCommand{Entity: id, Types: typeset.Of(reg.Count(), compType)}
	require.NoError(t, remove.Apply(world))
	require.False(t, world.HasAll(id, typeset.Of(reg.Count(), compType)))
}

func TestSetComponentCommand(t *testing.T) {
	reg := registry.New()
	compType, err := reg.Register("comp", 8, 8, registry.Regular, nil, nil)
	require.NoError(t, err)
	world := ecs.NewWorld(ecs.WithRegistry(reg))

	initial := make([]byte, 8)
	id, err := world.CreateEntity(typeset.Of(reg.Count(), compType), nil, ecs.ColumnInit{compType: initial})
	require.NoError(t, err)

	value := make([]byte, 8)
	value[0] = 42
	cmd := ecs.SetComponentCommand{Entity: id, Type: compType, Value: value}
	require.NoError(t, cmd.Apply(world))
	require.Equal(t, byte(42), world.GetComponent(id, compType)[0])
}

func TestSetSharedCommand(t *testing.T) {
	reg := registry.New()
	sharedType, err := reg.Register("Team", 4, 4, registry.Shared, nil, nil)
	require.NoError(t, err)
	world := ecs.NewWorld(ecs.WithRegistry(reg))

	initial := make([]byte, 4)
	id, err := world.CreateEntity(typeset.Of(reg.Count(), sharedType), map[registry.TypeID][]byte{sharedType: initial}, nil)
	require.NoError(t, err)

	updated := make([]byte, 4)
	updated[0] = 5
	cmd := ecs.SetSharedCommand{Entity: id, Values: map[registry.TypeID][]byte{sharedType: updated}}
	require.NoError(t, cmd.Apply(world))
	require.Equal(t, byte(5), world.GetComponent(id, sharedType)[0])
}
