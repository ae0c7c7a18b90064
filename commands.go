package ecs

import (
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
)

// CreateEntityCommand enqueues entity creation. If Target is a temp id
// (obtained via World.NewTempID), it is bound to the real id once this
// command applies, so later commands in the same batch can reference the
// new entity via World.Resolve.
type CreateEntityCommand struct {
	Target EntityID
	Types  typeset.TypeSet
	Shared map[registry.TypeID][]byte
	Init   ColumnInit
}

// DestroyEntityCommand enqueues entity deletion.
type DestroyEntityCommand struct {
	Entity        EntityID
	PreserveState bool
}

// AddComponentCommand enqueues adding a single component type to an entity.
type AddComponentCommand struct {
	Entity EntityID
	Type   registry.TypeID
	Value  []byte
}

// RemoveComponentsCommand enqueues removing a set of component types from an
// entity.
type RemoveComponentsCommand struct {
	Entity EntityID
	Types  typeset.TypeSet
}

// SetComponentCommand enqueues an in-place (or shared) component write.
type SetComponentCommand struct {
	Entity EntityID
	Type   registry.TypeID
	Value  []byte
}

// SetSharedCommand enqueues a multi-value shared-component update.
type SetSharedCommand struct {
	Entity EntityID
	Values map[registry.TypeID][]byte
}

func (c CreateEntityCommand) Apply(w *World) error {
	id, err := w.CreateEntity(c.Types, c.Shared, c.Init)
	if err != nil {
		return err
	}
	if c.Target.IsTemp() {
		w.bindTemp(c.Target, id)
	}
	return nil
}

func (c DestroyEntityCommand) Apply(w *World) error {
	return w.DestroyEntity(w.Resolve(c.Entity), c.PreserveState)
}

func (c AddComponentCommand) Apply(w *World) error {
	return w.AddComponent(w.Resolve(c.Entity), c.Type, c.Value)
}

func (c RemoveComponentsCommand) Apply(w *World) error {
	return w.RemoveComponents(w.Resolve(c.Entity), c.Types)
}

func (c SetComponentCommand) Apply(w *World) error {
	return w.SetComponent(w.Resolve(c.Entity), c.Type, c.Value)
}

func (c SetSharedCommand) Apply(w *World) error {
	return w.SetShared(w.Resolve(c.Entity), c.Values)
}

var (
	_ Command = CreateEntityCommand{}
	_ Command = DestroyEntityCommand{}
	_ Command = AddComponentCommand{}
	_ Command = RemoveComponentsCommand{}
	_ Command = SetComponentCommand{}
	_ Command = SetSharedCommand{}
)
