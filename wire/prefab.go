package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"

	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
)

// SavePrefab writes a single entity's default component values: the
// registry preamble, the prefab's (savable) type-set, its non-shared
// component bytes keyed by type, and its shared component bytes keyed by
// type. nonSharedValues and sharedValues need only contain entries for
// types present in types; types absent from types are ignored.
func SavePrefab(w io.Writer, reg *registry.Registry, types typeset.TypeSet, nonSharedValues, sharedValues map[registry.TypeID][]byte) error {
	if err := WritePreamble(w, reg); err != nil {
		return err
	}

	savable := typeset.FilterSavable(types, reg)
	if err := WriteTypeSet(w, savable); err != nil {
		return err
	}

	nonShared, shared := splitByShared(savable, reg)
	sortTypeIDs(nonShared)
	sortTypeIDs(shared)

	for _, t := range nonShared {
		v, ok := nonSharedValues[t]
		if !ok {
			continue
		}
		if err := writePrefabTypeIndex(w, int32(t)); err != nil {
			return err
		}
		if _, err := w.Write(v); err != nil {
			return err
		}
	}
	if err := writePrefabTypeIndex(w, -1); err != nil {
		return err
	}

	for _, t := range shared {
		v, ok := sharedValues[t]
		if !ok {
			continue
		}
		if err := writePrefabTypeIndex(w, int32(t)); err != nil {
			return err
		}
		if _, err := w.Write(v); err != nil {
			return err
		}
	}
	return writePrefabTypeIndex(w, -1)
}

func sortTypeIDs(ids []registry.TypeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// LoadPrefab reads a stream written by SavePrefab. Component values for
// saved types no longer registered under reg are dropped and reported in
// warnings rather than aborting the load.
func LoadPrefab(r io.Reader, reg *registry.Registry) (types typeset.TypeSet, nonSharedValues, sharedValues map[registry.TypeID][]byte, warnings error, err error) {
	entries, err := ReadPreamble(r)
	if err != nil {
		return typeset.TypeSet{}, nil, nil, nil, err
	}
	byIndex := make(map[int32]PreambleEntry, len(entries))
	for _, e := range entries {
		byIndex[e.SavedIndex] = e
	}

	savedSet, err := ReadTypeSet(r)
	if err != nil {
		return typeset.TypeSet{}, nil, nil, nil, err
	}
	types = typeset.New(reg.Count())
	savedSet.Each(func(bit registry.TypeID) {
		e, ok := byIndex[int32(bit)]
		if !ok {
			warnings = multierr.Append(warnings, fmt.Errorf("wire: prefab references unknown saved type index %d", bit))
			return
		}
		if id, ok := reg.LookupByName(e.Name); ok {
			types.Add(id)
		} else {
			warnings = multierr.Append(warnings, fmt.Errorf("wire: prefab references unregistered type %q, dropping", e.Name))
		}
	})

	nonSharedValues, err = readPrefabValueList(r, reg, byIndex, &warnings)
	if err != nil {
		return typeset.TypeSet{}, nil, nil, nil, err
	}
	sharedValues, err = readPrefabValueList(r, reg, byIndex, &warnings)
	if err != nil {
		return typeset.TypeSet{}, nil, nil, nil, err
	}
	return types, nonSharedValues, sharedValues, warnings, nil
}

func readPrefabValueList(r io.Reader, reg *registry.Registry, byIndex map[int32]PreambleEntry, warnings *error) (map[registry.TypeID][]byte, error) {
	out := make(map[registry.TypeID][]byte)
	for {
		idx, err := readTypeIndexPublic(r)
		if err != nil {
			return nil, err
		}
		if idx == -1 {
			return out, nil
		}
		e, ok := byIndex[idx]
		if !ok {
			return nil, fmt.Errorf("wire: prefab column type index %d absent from preamble", idx)
		}
		buf := make([]byte, e.Size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		id, ok := reg.LookupByName(e.Name)
		if !ok {
			*warnings = multierr.Append(*warnings, fmt.Errorf("wire: prefab column %q unregistered, dropping value", e.Name))
			continue
		}
		out[id] = buf
	}
}

func readTypeIndexPublic(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func writePrefabTypeIndex(w io.Writer, idx int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(idx))
	_, err := w.Write(b[:])
	return err
}
