// Package wire implements the on-disk/on-wire formats: the registry
// preamble, type-set encoding, chunk encoding, and the world-save/prefab
// container formats built from them. Every format reads and writes against
// a plain io.Writer/io.Reader — the host supplies whatever backs that
// (file, buffer, network pipe); this package never assumes more than
// sequential byte access.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/kestrelworks/ecs/chunk"
	"github.com/kestrelworks/ecs/registry"
)

// WritePreamble writes every registered type's index, byte size, and name,
// in registry order, ahead of a world-save or prefab-save stream. The size
// field is carried alongside type_index/name so a load against a registry
// missing that name can still skip its column bytes without guessing.
func WritePreamble(w io.Writer, reg *registry.Registry) error {
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(reg.Count()))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}

	var err error
	reg.Each(func(d registry.Descriptor) {
		if err != nil {
			return
		}
		err = writeDescriptorHeader(w, d)
	})
	return err
}

func writeDescriptorHeader(w io.Writer, d registry.Descriptor) error {
	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], uint32(d.Index))
	if _, err := w.Write(idxBuf[:]); err != nil {
		return err
	}
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(d.Size))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	nameBytes := []byte(d.Name)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(nameBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(nameBytes)
	return err
}

// PreambleEntry is one (saved index, size, name) triple read back from a
// preamble.
type PreambleEntry struct {
	SavedIndex int32
	Size       int
	Name       string
}

// ReadPreamble reads the registry preamble a stream was written with.
func ReadPreamble(r io.Reader) ([]PreambleEntry, error) {
	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	entries := make([]PreambleEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var idxBuf [4]byte
		if _, err := io.ReadFull(r, idxBuf[:]); err != nil {
			return nil, err
		}
		var sizeBuf [8]byte
		if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
			return nil, err
		}
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		nameLen := binary.LittleEndian.Uint64(lenBuf[:])
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		entries = append(entries, PreambleEntry{
			SavedIndex: int32(binary.LittleEndian.Uint32(idxBuf[:])),
			Size:       int(binary.LittleEndian.Uint64(sizeBuf[:])),
			Name:       string(name),
		})
	}
	return entries, nil
}

// nameResolver implements chunk.Resolver by mapping a saved type index to
// the live registry's TypeID, falling back to the preamble's recorded size
// when the name is unknown so the caller can still skip those bytes.
type nameResolver struct {
	reg     *registry.Registry
	byIndex map[int32]PreambleEntry
}

// NewResolver builds a chunk.Resolver from a preamble against the given
// live registry.
func NewResolver(reg *registry.Registry, entries []PreambleEntry) chunk.Resolver {
	byIndex := make(map[int32]PreambleEntry, len(entries))
	for _, e := range entries {
		byIndex[e.SavedIndex] = e
	}
	return &nameResolver{reg: reg, byIndex: byIndex}
}

func (n *nameResolver) Resolve(savedIndex int32) (registry.TypeID, int, bool) {
	entry, ok := n.byIndex[savedIndex]
	if !ok {
		return 0, 0, false
	}
	id, ok := n.reg.LookupByName(entry.Name)
	if !ok {
		return 0, entry.Size, false
	}
	d, ok := n.reg.Descriptor(id)
	if !ok {
		return 0, entry.Size, false
	}
	return id, d.Size, true
}
