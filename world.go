package ecs

import (
	"io"
	"sync"

	"github.com/kestrelworks/ecs/archetype"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/kestrelworks/ecs/view"
	"github.com/kestrelworks/ecs/wire"
)

// ColumnInit supplies explicit initial values for an entity's non-shared
// component columns at creation time, keyed by type; omitted types are left
// at their chunk default-construction value.
type ColumnInit map[registry.TypeID][]byte

// World owns every archetype, the entity id → location index, the type
// registry, and the coarse read/write type locks the scheduler acquires
// before dispatching a system. It is the sole structural-mutation surface:
// all add/remove/move operations funnel through it, either directly or via
// a drained CommandBuffer.
type World struct {
	mu  sync.RWMutex
	reg *registry.Registry

	archetypes []*archetype.Archetype // nil entries are holes
	location   map[EntityID]Location

	nextEntityID int64

	tempMu       sync.Mutex
	nextTempID   int64
	tempBindings map[EntityID]EntityID

	locks     *typeLocks
	resources ResourceContainer
}

// WorldOption configures a World at construction.
type WorldOption func(*World)

// WithRegistry supplies the type registry a world is built against. Without
// it, NewWorld allocates a fresh, empty registry.
func WithRegistry(reg *registry.Registry) WorldOption {
	return func(w *World) {
		if reg != nil {
			w.reg = reg
		}
	}
}

// WithResourceContainer overrides the default resource container.
func WithResourceContainer(container ResourceContainer) WorldOption {
	return func(w *World) {
		if container != nil {
			w.resources = container
		}
	}
}

// NewWorld constructs an empty world.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		location:  make(map[EntityID]Location),
		locks:     newTypeLocks(),
		resources: newResourceContainer(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.reg == nil {
		w.reg = registry.New()
	}
	return w
}

// Registry exposes the world's type registry.
func (w *World) Registry() *registry.Registry { return w.reg }

// Resources exposes the world's shared resource container.
func (w *World) Resources() ResourceContainer { return w.resources }

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.location)
}

// NewTempID issues a fresh negative placeholder id for use by a command that
// creates an entity and is referenced by a later command in the same batch
// before the batch drains.
func (w *World) NewTempID() EntityID {
	w.tempMu.Lock()
	defer w.tempMu.Unlock()
	w.nextTempID--
	return EntityID(w.nextTempID)
}

func (w *World) bindTemp(temp, real EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tempBindings == nil {
		w.tempBindings = make(map[EntityID]EntityID)
	}
	w.tempBindings[temp] = real
}

// Resolve translates a temp id bound earlier in the current command-buffer
// drain to its real id. Non-temp ids, and temp ids with no binding yet, pass
// through unchanged.
func (w *World) Resolve(id EntityID) EntityID {
	if !id.IsTemp() {
		return id
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if real, ok := w.tempBindings[id]; ok {
		return real
	}
	return id
}

// ApplyCommands drains a batch of deferred commands in order, resetting the
// temp-id binding table first so ids bound by an earlier batch do not leak
// into this one.
func (w *World) ApplyCommands(commands []Command) error {
	w.mu.Lock()
	w.tempBindings = make(map[EntityID]EntityID)
	w.mu.Unlock()
	for _, cmd := range commands {
		if err := cmd.Apply(w); err != nil {
			return err
		}
	}
	return nil
}

// archetypeFor returns the archetype whose type-set equals types, creating
// and installing one if none exists yet. Lookup is a linear scan: the
// registry (and therefore the live archetype count) is expected to stay
// small.
func (w *World) archetypeFor(types typeset.TypeSet) (*archetype.Archetype, int) {
	for i, a := range w.archetypes {
		if a != nil && typeset.Equal(a.Types(), types) {
			return a, i
		}
	}
	a := archetype.New(w.reg, types)
	return a, w.installArchetype(a)
}

func (w *World) installArchetype(a *archetype.Archetype) int {
	for i, existing := range w.archetypes {
		if existing == nil {
			w.archetypes[i] = a
			return i
		}
	}
	w.archetypes = append(w.archetypes, a)
	return len(w.archetypes) - 1
}

func (w *World) freeArchetype(i int) {
	w.archetypes[i] = nil
	for len(w.archetypes) > 0 && w.archetypes[len(w.archetypes)-1] == nil {
		w.archetypes = w.archetypes[:len(w.archetypes)-1]
	}
}

// CreateEntity allocates a new id, places it into the archetype matching
// types (creating that archetype if it is new), and default-constructs its
// columns before overwriting any explicitly supplied in init.
func (w *World) CreateEntity(types typeset.TypeSet, sharedValues map[registry.TypeID][]byte, init ColumnInit) (EntityID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextEntityID++
	id := EntityID(w.nextEntityID)

	arch, idx := w.archetypeFor(types)
	loc, err := arch.AllocateForNew(int64(id), sharedValues)
	if err != nil {
		return 0, err
	}
	w.location[id] = Location{ArchetypeIndex: idx, ChunkIndex: loc.ChunkIndex, Element: loc.Element}

	if len(init) > 0 {
		c := arch.Chunk(loc.ChunkIndex)
		for t, v := range init {
			if dst := c.ColumnBytes(t, loc.Element); dst != nil {
				copy(dst, v)
			}
		}
	}
	return id, nil
}

// migrate moves the entity id to the archetype matching destTypes,
// preserving shared-component values it already carries for types common to
// both archetypes unless overridden by overrideShared, and updates the
// world's location index for both id and whatever entity the source pop
// displaces.
func (w *World) migrate(id EntityID, destTypes typeset.TypeSet, overrideShared map[registry.TypeID][]byte) error {
	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	srcArch := w.archetypes[loc.ArchetypeIndex]
	srcChunk := srcArch.Chunk(loc.ChunkIndex)

	destArch, destIdx := w.archetypeFor(destTypes)

	sharedValues := make(map[registry.TypeID][]byte, len(destArch.SharedTypes()))
	for _, t := range destArch.SharedTypes() {
		if srcArch.Types().Contains(t) {
			if v := srcChunk.SharedPtr(t); v != nil {
				cp := make([]byte, len(v))
				copy(cp, v)
				sharedValues[t] = cp
			}
		}
	}
	for t, v := range overrideShared {
		sharedValues[t] = v
	}

	newLoc, err := destArch.MoveInto(srcChunk, loc.Element, sharedValues)
	if err != nil {
		return err
	}

	movedID, moved, _ := srcArch.RemoveAt(archetype.Location{ChunkIndex: loc.ChunkIndex, Element: loc.Element})

	w.location[id] = Location{ArchetypeIndex: destIdx, ChunkIndex: newLoc.ChunkIndex, Element: newLoc.Element}
	if moved {
		w.location[EntityID(movedID)] = Location{ArchetypeIndex: loc.ArchetypeIndex, ChunkIndex: loc.ChunkIndex, Element: loc.Element}
	}
	if len(srcArch.Chunks()) == 0 {
		w.freeArchetype(loc.ArchetypeIndex)
	}
	return nil
}

func (w *World) removeEntity(id EntityID, loc Location) {
	arch := w.archetypes[loc.ArchetypeIndex]
	movedID, moved, _ := arch.RemoveAt(archetype.Location{ChunkIndex: loc.ChunkIndex, Element: loc.Element})
	delete(w.location, id)
	if moved {
		w.location[EntityID(movedID)] = Location{ArchetypeIndex: loc.ArchetypeIndex, ChunkIndex: loc.ChunkIndex, Element: loc.Element}
	}
	if len(arch.Chunks()) == 0 {
		w.freeArchetype(loc.ArchetypeIndex)
	}
}

// DestroyEntity removes id. If preserveState is true and its archetype
// carries any State-kind component, the entity instead migrates to an
// archetype holding only its state components plus DeletedEntity, so the
// host can reap the preserved state later. Destroying an unknown id is a
// silent no-op, per the UnknownEntity recovery policy.
func (w *World) DestroyEntity(id EntityID, preserveState bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]

	if preserveState {
		stateTypes := typeset.FilterState(arch.Types(), w.reg)
		if !stateTypes.IsEmpty() {
			dest := stateTypes.Clone()
			dest.Add(w.reg.DeletedEntity)
			return w.migrate(id, dest, nil)
		}
	}
	w.removeEntity(id, loc)
	return nil
}

// AddComponent extends id's type-set with t, migrating it to (or creating)
// the destination archetype, then writes value into the new column. If t is
// a Shared-kind type, value instead becomes the shared singleton constraint
// used to pick the destination chunk.
func (w *World) AddComponent(id EntityID, t registry.TypeID, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	newTypes := arch.Types().Clone()
	newTypes.Add(t)

	isShared := false
	var override map[registry.TypeID][]byte
	if d, ok := w.reg.Descriptor(t); ok && d.Kind == registry.Shared {
		isShared = true
		override = map[registry.TypeID][]byte{t: value}
	}

	if err := w.migrate(id, newTypes, override); err != nil {
		return err
	}
	if isShared {
		return nil
	}

	loc2 := w.location[id]
	arch2 := w.archetypes[loc2.ArchetypeIndex]
	if dst := arch2.Chunk(loc2.ChunkIndex).ColumnBytes(t, loc2.Element); dst != nil && value != nil {
		copy(dst, value)
	}
	return nil
}

// RemoveComponents subtracts types from id's type-set and migrates it to
// the resulting archetype, or destroys it outright if that leaves an empty
// type-set.
func (w *World) RemoveComponents(id EntityID, types typeset.TypeSet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	newTypes := typeset.Subtract(arch.Types(), types)
	if newTypes.IsEmpty() {
		w.removeEntity(id, loc)
		return nil
	}
	return w.migrate(id, newTypes, nil)
}

// ChangeComponents migrates id directly to newTypes, useful when a command
// wants to add and remove components in one structural step. A target set
// that is empty, or holds nothing but DeletedEntity, destroys the entity
// instead of migrating it into a degenerate archetype.
func (w *World) ChangeComponents(id EntityID, newTypes typeset.TypeSet, sharedValues map[registry.TypeID][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	if newTypes.IsEmpty() || typeset.Equal(newTypes, typeset.Of(w.reg.Count(), w.reg.DeletedEntity)) {
		w.removeEntity(id, loc)
		return nil
	}
	return w.migrate(id, newTypes, sharedValues)
}

// setSharedLocked is SetShared's body, callable while w.mu is already held
// for write (SetComponent routes shared-kind writes here without a second
// lock acquisition).
func (w *World) setSharedLocked(id EntityID, values map[registry.TypeID][]byte) error {
	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	c := arch.Chunk(loc.ChunkIndex)

	newTypes := arch.Types().Clone()
	extended := false
	for t := range values {
		if !newTypes.Contains(t) {
			newTypes.Add(t)
			extended = true
		}
	}
	if !extended {
		allMatch := true
		for t, v := range values {
			if !c.SharedEq(t, v) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return nil
		}
	}
	return w.migrate(id, newTypes, values)
}

// SetShared overwrites id's shared-component values, migrating it to
// whichever chunk (in the same archetype) already carries the merged
// singleton tuple, allocating a new one if none matches. A shared type the
// entity does not yet carry extends its type-set first, resolving (or
// creating) the wider archetype before the chunk is picked. Setting values
// already in effect is a no-op: no migration, no chunk allocation.
func (w *World) SetShared(id EntityID, values map[registry.TypeID][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setSharedLocked(id, values)
}

// SetComponent overwrites id's value for t in place if t is a regular
// column, or routes to SetShared if t is a Shared-kind type.
func (w *World) SetComponent(id EntityID, t registry.TypeID, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if d, ok := w.reg.Descriptor(t); ok && d.Kind == registry.Shared {
		return w.setSharedLocked(id, map[registry.TypeID][]byte{t: value})
	}

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	dst := arch.Chunk(loc.ChunkIndex).ColumnBytes(t, loc.Element)
	if dst == nil {
		return nil
	}
	copy(dst, value)
	return nil
}

// GetComponent returns a pointer into the live column (or shared slot) for
// t, or nil if id is unknown or its archetype lacks t. The slice aliases
// chunk storage directly and is valid only until the next structural
// mutation of that archetype.
func (w *World) GetComponent(id EntityID, t registry.TypeID) []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()

	loc, ok := w.location[id]
	if !ok {
		return nil
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	c := arch.Chunk(loc.ChunkIndex)
	if d, ok := w.reg.Descriptor(t); ok && d.Kind == registry.Shared {
		return c.SharedPtr(t)
	}
	return c.ColumnBytes(t, loc.Element)
}

// HasAll reports whether id's archetype carries every type in types.
func (w *World) HasAll(id EntityID, types typeset.TypeSet) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc, ok := w.location[id]
	if !ok {
		return false
	}
	return typeset.Contains(w.archetypes[loc.ArchetypeIndex].Types(), types)
}

// View materializes every live chunk whose archetype matches q.
func (w *World) View(q typeset.Query) *view.View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return view.New(w.archetypes, q)
}

// SavePrefab writes entity id's current component values as a reusable
// template: the registry preamble, the entity's type-set, and one element's
// worth of component bytes. DontSave and State components are omitted by
// the wire layer.
func (w *World) SavePrefab(out io.Writer, id EntityID) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	loc, ok := w.location[id]
	if !ok {
		return ErrUnknownEntity
	}
	arch := w.archetypes[loc.ArchetypeIndex]
	c := arch.Chunk(loc.ChunkIndex)

	nonShared := make(map[registry.TypeID][]byte)
	shared := make(map[registry.TypeID][]byte)
	arch.Types().Each(func(t registry.TypeID) {
		if d, ok := w.reg.Descriptor(t); ok && d.Kind == registry.Shared {
			if v := c.SharedPtr(t); v != nil {
				shared[t] = v
			}
			return
		}
		if v := c.ColumnBytes(t, loc.Element); v != nil {
			nonShared[t] = v
		}
	})
	return wire.SavePrefab(out, w.reg, arch.Types(), nonShared, shared)
}

// InstantiatePrefab creates one new entity from a prefab stream written by
// SavePrefab. Saved components whose type name is no longer registered are
// dropped and reported via warnings, the same recovery Load uses.
func (w *World) InstantiatePrefab(in io.Reader) (id EntityID, warnings error, err error) {
	types, nonShared, shared, warnings, err := wire.LoadPrefab(in, w.reg)
	if err != nil {
		return 0, nil, err
	}
	id, err = w.CreateEntity(types, shared, ColumnInit(nonShared))
	if err != nil {
		return 0, warnings, err
	}
	return id, warnings, nil
}

// Save writes the entire world — registry preamble, every savable
// archetype's chunks, and the entity location trailer — to out.
func (w *World) Save(out io.Writer) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	locs := make(map[int64]wire.EntityLoc, len(w.location))
	for id, loc := range w.location {
		locs[int64(id)] = wire.EntityLoc{
			ArchetypeIndex: int32(loc.ArchetypeIndex),
			ChunkIndex:     int32(loc.ChunkIndex),
			ElementIndex:   int32(loc.Element),
		}
	}
	return wire.SaveWorld(out, w.reg, w.archetypes, locs, w.nextEntityID)
}

// Load replaces the world's archetypes and location index with the contents
// of a stream written by Save. Component columns whose saved name is no
// longer registered are skipped and reported via the returned warnings,
// rather than aborting the load.
func (w *World) Load(in io.Reader) (warnings error, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	archetypes, locations, nextID, warnings, err := wire.LoadWorld(in, w.reg)
	if err != nil {
		return nil, err
	}
	w.archetypes = archetypes
	w.location = make(map[EntityID]Location, len(locations))
	for id, loc := range locations {
		w.location[EntityID(id)] = Location{
			ArchetypeIndex: int(loc.ArchetypeIndex),
			ChunkIndex:     int(loc.ChunkIndex),
			Element:        int(loc.ElementIndex),
		}
	}
	w.nextEntityID = nextID
	return warnings, nil
}
