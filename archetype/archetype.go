// Package archetype groups entities that share an identical component
// type-set into a table of fixed-size chunks, and tracks which chunk holds
// the one live copy of each distinct shared-component value combination.
package archetype

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/kestrelworks/ecs/chunk"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
)

// Location identifies one entity's storage slot within an archetype.
type Location struct {
	ChunkIndex int
	Element    int
}

// Archetype owns every chunk holding entities of one exact component
// type-set. Chunks are kept in a slice with holes: deleting the last chunk
// trims the slice, but holes elsewhere are reused by the next allocation
// that needs a fresh chunk.
type Archetype struct {
	reg   *registry.Registry
	types typeset.TypeSet

	nonShared []registry.TypeID
	shared    []registry.TypeID

	chunks  []*chunk.Chunk // nil entries are holes
	buckets map[uint64][]int
	filling int // index of the chunk new no-shared-constraint entities prefer; -1 if none
}

// New builds an empty archetype for exactly the given type-set.
func New(reg *registry.Registry, types typeset.TypeSet) *Archetype {
	a := &Archetype{
		reg:     reg,
		types:   types.Clone(),
		buckets: make(map[uint64][]int),
		filling: -1,
	}
	types.Each(func(id registry.TypeID) {
		if d, ok := reg.Descriptor(id); ok && d.Kind == registry.Shared {
			a.shared = append(a.shared, id)
		} else {
			a.nonShared = append(a.nonShared, id)
		}
	})
	return a
}

// Types returns the archetype's component type-set.
func (a *Archetype) Types() typeset.TypeSet { return a.types }

// NonSharedTypes returns the archetype's per-entity column types.
func (a *Archetype) NonSharedTypes() []registry.TypeID { return a.nonShared }

// SharedTypes returns the archetype's per-chunk singleton types.
func (a *Archetype) SharedTypes() []registry.TypeID { return a.shared }

// Matches reports whether this archetype's type-set satisfies q.
func (a *Archetype) Matches(q typeset.Query) bool {
	return q.Matches(a.types)
}

// Chunks returns the archetype's chunk slots, including holes (nil
// entries). Callers iterating for reads must skip nils.
func (a *Archetype) Chunks() []*chunk.Chunk { return a.chunks }

// Chunk returns the chunk at index i, or nil if i is a hole or out of
// range.
func (a *Archetype) Chunk(i int) *chunk.Chunk {
	if i < 0 || i >= len(a.chunks) {
		return nil
	}
	return a.chunks[i]
}

// normalizeShared completes values to cover every shared type of the
// archetype, substituting the default-constructed bytes for any missing
// type, so hash bucketing and singleton comparison always run over the
// full tuple. Two callers constraining the same effective tuple through
// different partial maps therefore land on the same chunk.
func (a *Archetype) normalizeShared(values map[registry.TypeID][]byte) map[registry.TypeID][]byte {
	if len(a.shared) == 0 {
		return nil
	}
	full := make(map[registry.TypeID][]byte, len(a.shared))
	for _, t := range a.shared {
		if v, ok := values[t]; ok {
			full[t] = v
			continue
		}
		d, _ := a.reg.Descriptor(t)
		buf := make([]byte, d.Size)
		if d.Construct != nil {
			d.Construct(buf)
		}
		full[t] = buf
	}
	return full
}

func (a *Archetype) sharedHash(values map[registry.TypeID][]byte) uint64 {
	h := xxhash.New()
	for _, t := range a.shared {
		if v, ok := values[t]; ok {
			h.Write(v)
		}
	}
	return h.Sum64()
}

func (a *Archetype) chunkMatchesShared(ci int, values map[registry.TypeID][]byte) bool {
	c := a.chunks[ci]
	if c == nil {
		return false
	}
	for _, t := range a.shared {
		v, ok := values[t]
		if !ok {
			continue
		}
		if !c.SharedEq(t, v) {
			return false
		}
	}
	return true
}

// findFreeSlot returns the index of the first hole, or -1 if there is none.
func (a *Archetype) findFreeSlot() int {
	for i, c := range a.chunks {
		if c == nil {
			return i
		}
	}
	return -1
}

func (a *Archetype) installChunk(c *chunk.Chunk) int {
	if i := a.findFreeSlot(); i >= 0 {
		a.chunks[i] = c
		return i
	}
	a.chunks = append(a.chunks, c)
	return len(a.chunks) - 1
}

func (a *Archetype) addToBucket(hash uint64, idx int) {
	a.buckets[hash] = append(a.buckets[hash], idx)
}

// AllocateForNew finds or creates a chunk with free capacity whose shared
// singleton values match the given map (shared types omitted from the map
// are filled with their default-constructed bytes by normalizeShared and
// matched against that default), pushes id into it, and returns its
// location. It also
// updates the currently-filling-chunk pointer so subsequent allocations
// with the same (or no) shared constraint land adjacently for locality.
func (a *Archetype) AllocateForNew(id int64, sharedValues map[registry.TypeID][]byte) (Location, error) {
	if len(a.shared) == 0 {
		if a.filling >= 0 && a.chunks[a.filling] != nil && !a.chunks[a.filling].Full() {
			elem, ok := a.chunks[a.filling].Push(id)
			if ok {
				return Location{ChunkIndex: a.filling, Element: elem}, nil
			}
		}
		c, err := chunk.New(a.reg, a.nonShared, a.shared)
		if err != nil {
			return Location{}, err
		}
		ci := a.installChunk(c)
		a.filling = ci
		elem, _ := c.Push(id)
		return Location{ChunkIndex: ci, Element: elem}, nil
	}

	sharedValues = a.normalizeShared(sharedValues)
	hash := a.sharedHash(sharedValues)
	for _, ci := range a.buckets[hash] {
		if ci >= len(a.chunks) || a.chunks[ci] == nil {
			continue
		}
		if !a.chunkMatchesShared(ci, sharedValues) || a.chunks[ci].Full() {
			continue
		}
		elem, ok := a.chunks[ci].Push(id)
		if ok {
			a.filling = ci
			return Location{ChunkIndex: ci, Element: elem}, nil
		}
	}

	c, err := chunk.New(a.reg, a.nonShared, a.shared)
	if err != nil {
		return Location{}, err
	}
	for t, v := range sharedValues {
		c.SharedSet(t, v)
	}
	ci := a.installChunk(c)
	a.addToBucket(hash, ci)
	a.filling = ci
	elem, _ := c.Push(id)
	return Location{ChunkIndex: ci, Element: elem}, nil
}

// RemoveAt removes the entity at loc via pop-swap, returning the id of the
// entity that moved into the vacated slot, whether one moved (the moved
// entity now sits at loc.Element), and whether the chunk became empty and
// was freed.
func (a *Archetype) RemoveAt(loc Location) (movedID int64, moved bool, chunkFreed bool) {
	c := a.Chunk(loc.ChunkIndex)
	if c == nil {
		return 0, false, false
	}
	movedID, moved = c.PopSwap(loc.Element)
	if c.Size() == 0 {
		a.freeChunk(loc.ChunkIndex)
		chunkFreed = true
	}
	return movedID, moved, chunkFreed
}

func (a *Archetype) freeChunk(i int) {
	a.chunks[i] = nil
	for b, idxs := range a.buckets {
		out := idxs[:0]
		for _, x := range idxs {
			if x != i {
				out = append(out, x)
			}
		}
		if len(out) == 0 {
			delete(a.buckets, b)
		} else {
			a.buckets[b] = out
		}
	}
	if a.filling == i {
		a.filling = -1
	}
	// trim trailing holes
	for len(a.chunks) > 0 && a.chunks[len(a.chunks)-1] == nil {
		a.chunks = a.chunks[:len(a.chunks)-1]
	}
}

// MoveInto moves the entity at srcLoc (in a different archetype's chunk src)
// into a or a matching chunk within a that satisfies sharedValues, growing a
// new chunk if necessary. It does not remove the entity from src; the
// caller must do that separately (typically via RemoveAt) once the move
// completes, to keep the two-archetype update atomic under the caller's own
// lock.
func (a *Archetype) MoveInto(src *chunk.Chunk, srcIdx int, sharedValues map[registry.TypeID][]byte) (Location, error) {
	if len(a.shared) == 0 {
		if a.filling >= 0 && a.chunks[a.filling] != nil && !a.chunks[a.filling].Full() {
			if elem, ok := a.chunks[a.filling].MoveIn(src, srcIdx); ok {
				return Location{ChunkIndex: a.filling, Element: elem}, nil
			}
		}
		c, err := chunk.New(a.reg, a.nonShared, a.shared)
		if err != nil {
			return Location{}, err
		}
		ci := a.installChunk(c)
		a.filling = ci
		elem, _ := c.MoveIn(src, srcIdx)
		return Location{ChunkIndex: ci, Element: elem}, nil
	}

	sharedValues = a.normalizeShared(sharedValues)
	hash := a.sharedHash(sharedValues)
	for _, ci := range a.buckets[hash] {
		if ci >= len(a.chunks) || a.chunks[ci] == nil {
			continue
		}
		if !a.chunkMatchesShared(ci, sharedValues) || a.chunks[ci].Full() {
			continue
		}
		if elem, ok := a.chunks[ci].MoveIn(src, srcIdx); ok {
			a.filling = ci
			return Location{ChunkIndex: ci, Element: elem}, nil
		}
	}
	c, err := chunk.New(a.reg, a.nonShared, a.shared)
	if err != nil {
		return Location{}, err
	}
	for t, v := range sharedValues {
		c.SharedSet(t, v)
	}
	ci := a.installChunk(c)
	a.addToBucket(hash, ci)
	a.filling = ci
	elem, _ := c.MoveIn(src, srcIdx)
	return Location{ChunkIndex: ci, Element: elem}, nil
}

// SetShared overwrites the shared singleton t for the chunk at loc in
// place. It must only be called when no other live entity shares that
// chunk, or when the caller intends the change to apply to every entity in
// the chunk (callers implementing per-entity set_shared are responsible for
// first relocating the entity to its own chunk via MoveInto).
func (a *Archetype) SetShared(loc Location, t registry.TypeID, value []byte) error {
	c := a.Chunk(loc.ChunkIndex)
	if c == nil {
		return fmt.Errorf("archetype: chunk %d is not live", loc.ChunkIndex)
	}
	c.SharedSet(t, value)
	return nil
}

// ChunkSharedValues snapshots the current shared-singleton bytes of the
// chunk at loc, keyed by type, for use as a MoveInto/AllocateForNew
// constraint when an entity needs to keep its existing shared values while
// moving to a differently-shaped archetype.
func (a *Archetype) ChunkSharedValues(loc Location) map[registry.TypeID][]byte {
	c := a.Chunk(loc.ChunkIndex)
	if c == nil {
		return nil
	}
	out := make(map[registry.TypeID][]byte, len(a.shared))
	for _, t := range a.shared {
		if v := c.SharedPtr(t); v != nil {
			cp := make([]byte, len(v))
			copy(cp, v)
			out[t] = cp
		}
	}
	return out
}

// InstallLoadedChunk appends an already-populated chunk (typically produced
// by wire.LoadWorld) to the archetype's chunk list and returns its index.
// Unlike AllocateForNew/MoveInto it does not touch shared-value hash
// buckets by value; callers that load shared-component archetypes should
// call RebuildSharedBuckets once every chunk has been installed.
func (a *Archetype) InstallLoadedChunk(c *chunk.Chunk) int {
	return a.installChunk(c)
}

// RebuildSharedBuckets recomputes the shared-value hash buckets from the
// archetype's current chunks. Used after a bulk load via
// InstallLoadedChunk, where chunks arrive with their shared singletons
// already set rather than through AllocateForNew.
func (a *Archetype) RebuildSharedBuckets() {
	a.buckets = make(map[uint64][]int)
	if len(a.shared) == 0 {
		return
	}
	for i, c := range a.chunks {
		if c == nil {
			continue
		}
		values := make(map[registry.TypeID][]byte, len(a.shared))
		for _, t := range a.shared {
			values[t] = c.SharedPtr(t)
		}
		a.addToBucket(a.sharedHash(values), i)
	}
}

// EntityCount returns the total number of live entities across all chunks.
func (a *Archetype) EntityCount() int {
	n := 0
	for _, c := range a.chunks {
		if c != nil {
			n += c.Size()
		}
	}
	return n
}
