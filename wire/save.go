package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"

	"github.com/kestrelworks/ecs/archetype"
	"github.com/kestrelworks/ecs/chunk"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
)

// EntityLoc is the wire representation of an entity's storage slot: an
// index into the archetype list written by this save (or read back by a
// load), a chunk index within that archetype, and an element index within
// that chunk.
type EntityLoc struct {
	ArchetypeIndex int32
	ChunkIndex     int32
	ElementIndex   int32
}

func splitByShared(ts typeset.TypeSet, reg *registry.Registry) (nonShared, shared []registry.TypeID) {
	ts.Each(func(id registry.TypeID) {
		if d, ok := reg.Descriptor(id); ok && d.Kind == registry.Shared {
			shared = append(shared, id)
		} else {
			nonShared = append(nonShared, id)
		}
	})
	return nonShared, shared
}

// SaveWorld writes the registry preamble followed by every archetype that
// carries at least one savable component type, merging archetypes whose
// savable type-sets are equal (they differ only in DontSave/State
// components), then the entity→location trailer and next_entity_id.
// Holes in archetypes must be nil. locations is used only to size the
// trailer; the trailer itself is rebuilt from the entity ids stored in
// the written chunks, so entities of archetypes with no savable type are
// not in it.
func SaveWorld(w io.Writer, reg *registry.Registry, archetypes []*archetype.Archetype, locations map[int64]EntityLoc, nextEntityID int64) error {
	if err := WritePreamble(w, reg); err != nil {
		return err
	}

	type group struct {
		savable   typeset.TypeSet
		members   []int // indices into archetypes
		nonShared []registry.TypeID
		shared    []registry.TypeID
	}

	var groups []*group
	assigned := make([]bool, len(archetypes))
	for i, a := range archetypes {
		if a == nil || assigned[i] {
			continue
		}
		savable := typeset.FilterSavable(a.Types(), reg)
		if savable.IsEmpty() {
			assigned[i] = true
			continue
		}
		g := &group{savable: savable, members: []int{i}}
		assigned[i] = true
		for j := i + 1; j < len(archetypes); j++ {
			if archetypes[j] == nil || assigned[j] {
				continue
			}
			otherSavable := typeset.FilterSavable(archetypes[j].Types(), reg)
			if typeset.Equal(savable, otherSavable) {
				g.members = append(g.members, j)
				assigned[j] = true
			}
		}
		g.nonShared, g.shared = splitByShared(savable, reg)
		groups = append(groups, g)
	}

	newLoc := make(map[int64]EntityLoc, len(locations))

	for groupIdx, g := range groups {
		if err := WriteTypeSet(w, g.savable); err != nil {
			return err
		}

		chunkCount := 0
		for _, mi := range g.members {
			for _, c := range archetypes[mi].Chunks() {
				if c != nil {
					chunkCount++
				}
			}
		}
		var countBuf [8]byte
		binary.LittleEndian.PutUint64(countBuf[:], uint64(chunkCount))
		if _, err := w.Write(countBuf[:]); err != nil {
			return err
		}

		chunkIdx := 0
		for _, mi := range g.members {
			for _, c := range archetypes[mi].Chunks() {
				if c == nil {
					continue
				}
				if err := c.WriteTo(w, g.nonShared, g.shared); err != nil {
					return err
				}
				for row := 0; row < c.Size(); row++ {
					id := c.EntityID(row)
					newLoc[id] = EntityLoc{
						ArchetypeIndex: int32(groupIdx),
						ChunkIndex:     int32(chunkIdx),
						ElementIndex:   int32(row),
					}
				}
				chunkIdx++
			}
		}
	}

	if err := WriteTypeSet(w, typeset.TypeSet{}); err != nil {
		return err
	}

	ids := make([]int64, 0, len(newLoc))
	for id := range newLoc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(ids)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeEntityLocEntry(w, id, newLoc[id]); err != nil {
			return err
		}
	}

	var nextBuf [8]byte
	binary.LittleEndian.PutUint64(nextBuf[:], uint64(nextEntityID))
	_, err := w.Write(nextBuf[:])
	return err
}

func writeEntityLocEntry(w io.Writer, id int64, loc EntityLoc) error {
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], uint64(id))
	if _, err := w.Write(idBuf[:]); err != nil {
		return err
	}
	var locBuf [12]byte
	binary.LittleEndian.PutUint32(locBuf[0:4], uint32(loc.ArchetypeIndex))
	binary.LittleEndian.PutUint32(locBuf[4:8], uint32(loc.ChunkIndex))
	binary.LittleEndian.PutUint32(locBuf[8:12], uint32(loc.ElementIndex))
	_, err := w.Write(locBuf[:])
	return err
}

func readEntityLocEntry(r io.Reader) (int64, EntityLoc, error) {
	var idBuf [8]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return 0, EntityLoc{}, err
	}
	var locBuf [12]byte
	if _, err := io.ReadFull(r, locBuf[:]); err != nil {
		return 0, EntityLoc{}, err
	}
	loc := EntityLoc{
		ArchetypeIndex: int32(binary.LittleEndian.Uint32(locBuf[0:4])),
		ChunkIndex:     int32(binary.LittleEndian.Uint32(locBuf[4:8])),
		ElementIndex:   int32(binary.LittleEndian.Uint32(locBuf[8:12])),
	}
	return int64(binary.LittleEndian.Uint64(idBuf[:])), loc, nil
}

// LoadWorld reconstructs archetypes and the entity location map from a
// stream written by SaveWorld, resolving saved type names against reg.
// Columns whose saved name is no longer registered are skipped and
// recorded as a non-fatal diagnostic (warnings), per the FormatMismatch
// recovery policy of skipping the unknown component and continuing the
// load; warnings is nil when nothing was skipped.
func LoadWorld(r io.Reader, reg *registry.Registry) (archetypes []*archetype.Archetype, locations map[int64]EntityLoc, nextEntityID int64, warnings error, err error) {
	entries, err := ReadPreamble(r)
	if err != nil {
		return nil, nil, 0, nil, err
	}
	res := NewResolver(reg, entries)
	byIndex := make(map[int32]PreambleEntry, len(entries))
	for _, e := range entries {
		byIndex[e.SavedIndex] = e
	}

	for {
		savedSet, err := ReadTypeSet(r)
		if err != nil {
			return nil, nil, 0, nil, err
		}
		if IsSentinel(savedSet) {
			break
		}

		liveSet := typeset.New(reg.Count())
		savedSet.Each(func(savedBit registry.TypeID) {
			e, ok := byIndex[int32(savedBit)]
			if !ok {
				warnings = multierr.Append(warnings, fmt.Errorf("wire: archetype references unknown saved type index %d", savedBit))
				return
			}
			if id, ok := reg.LookupByName(e.Name); ok {
				liveSet.Add(id)
			} else {
				warnings = multierr.Append(warnings, fmt.Errorf("wire: archetype references unregistered type %q, dropping from loaded shape", e.Name))
			}
		})

		a := archetype.New(reg, liveSet)

		var countBuf [8]byte
		if _, err := io.ReadFull(r, countBuf[:]); err != nil {
			return nil, nil, 0, nil, err
		}
		chunkCount := binary.LittleEndian.Uint64(countBuf[:])

		for i := uint64(0); i < chunkCount; i++ {
			c, diags, err := chunk.ReadFrom(r, reg, a.NonSharedTypes(), a.SharedTypes(), res)
			if err != nil {
				return nil, nil, 0, nil, err
			}
			for _, d := range diags {
				warnings = multierr.Append(warnings, d)
			}
			a.InstallLoadedChunk(c)
		}
		a.RebuildSharedBuckets()
		archetypes = append(archetypes, a)
	}

	var entityCountBuf [8]byte
	if _, err := io.ReadFull(r, entityCountBuf[:]); err != nil {
		return nil, nil, 0, nil, err
	}
	entityCount := binary.LittleEndian.Uint64(entityCountBuf[:])

	locations = make(map[int64]EntityLoc, entityCount)
	for i := uint64(0); i < entityCount; i++ {
		id, loc, err := readEntityLocEntry(r)
		if err != nil {
			return nil, nil, 0, nil, err
		}
		locations[id] = loc
	}

	var nextBuf [8]byte
	if _, err := io.ReadFull(r, nextBuf[:]); err != nil {
		return nil, nil, 0, nil, err
	}
	nextEntityID = int64(binary.LittleEndian.Uint64(nextBuf[:]))

	return archetypes, locations, nextEntityID, warnings, nil
}
