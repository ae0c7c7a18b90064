package chunk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kestrelworks/ecs/registry"
)

// typeIndexSentinel terminates a column or shared-slot list in the wire
// format.
const typeIndexSentinel = -1

// Resolver maps a type index as it appeared in the save stream's registry
// preamble to the live TypeID and byte size for that type, so a chunk being
// loaded can skip unknown columns without knowing their meaning.
type Resolver interface {
	Resolve(savedIndex int32) (id registry.TypeID, size int, known bool)
}

// WriteTo serializes the chunk's live entities and the requested columns.
// writeNonShared and writeShared name the subset of the chunk's own column
// set that the caller has already decided is worth persisting (regular,
// savable, non-state types, plus anything Internal); everything else
// (DontSave and State columns) is silently omitted by not being listed.
func (c *Chunk) WriteTo(w io.Writer, writeNonShared, writeShared []registry.TypeID) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(c.size))
	if _, err := w.Write(hdr[:4]); err != nil {
		return err
	}
	for i := 0; i < c.size; i++ {
		binary.LittleEndian.PutUint64(hdr[:8], uint64(c.EntityID(i)))
		if _, err := w.Write(hdr[:8]); err != nil {
			return err
		}
	}

	for _, t := range writeNonShared {
		col, ok := c.column(t)
		if !ok {
			continue
		}
		if err := writeTypeIndex(w, int32(t)); err != nil {
			return err
		}
		start := col.Offset
		end := col.Offset + c.size*col.Size
		if _, err := w.Write(c.buf[start:end]); err != nil {
			return err
		}
	}
	if err := writeTypeIndex(w, typeIndexSentinel); err != nil {
		return err
	}

	for _, t := range writeShared {
		slot, ok := c.sharedSlot(t)
		if !ok {
			continue
		}
		if err := writeTypeIndex(w, int32(t)); err != nil {
			return err
		}
		if _, err := w.Write(c.buf[slot.Offset : slot.Offset+slot.Size]); err != nil {
			return err
		}
	}
	return writeTypeIndex(w, typeIndexSentinel)
}

func writeTypeIndex(w io.Writer, idx int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(idx))
	_, err := w.Write(b[:])
	return err
}

func readTypeIndex(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// ReadFrom reconstructs a chunk shaped by nonShared/shared (the archetype's
// live column set), consuming a stream written by WriteTo. Saved columns
// whose type is unknown to res (deleted or renamed since save time) are
// skipped by byte count rather than aborting the load; this is the
// FormatMismatch recovery policy.
func ReadFrom(r io.Reader, reg *registry.Registry, nonShared, shared []registry.TypeID, res Resolver) (*Chunk, []error, error) {
	var diagnostics []error

	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, nil, err
	}
	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))

	ids := make([]int64, size)
	for i := 0; i < size; i++ {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, nil, err
		}
		ids[i] = int64(binary.LittleEndian.Uint64(b[:]))
	}

	c, err := New(reg, nonShared, shared)
	if err != nil {
		return nil, nil, err
	}
	if size > c.Capacity() {
		return nil, nil, fmt.Errorf("chunk: saved chunk holds %d entities, exceeds current capacity %d", size, c.Capacity())
	}
	for _, id := range ids {
		if _, ok := c.Push(id); !ok {
			return nil, nil, fmt.Errorf("chunk: push failed while loading entity %d", id)
		}
	}

	for {
		savedIdx, err := readTypeIndex(r)
		if err != nil {
			return nil, nil, err
		}
		if savedIdx == typeIndexSentinel {
			break
		}
		liveID, colSize, known := res.Resolve(savedIdx)
		if !known {
			diagnostics = append(diagnostics, fmt.Errorf("chunk: skipping unknown column type index %d", savedIdx))
			if _, err := io.CopyN(io.Discard, r, int64(size*colSizeFallback(colSize))); err != nil {
				return nil, nil, err
			}
			continue
		}
		raw := make([]byte, size*colSize)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, nil, err
		}
		col, ok := c.column(liveID)
		if !ok {
			// type is known process-wide but not part of this archetype's
			// current column set (e.g. component removed from this shape).
			diagnostics = append(diagnostics, fmt.Errorf("chunk: type index %d not part of target archetype, dropping", savedIdx))
			continue
		}
		for i := 0; i < size; i++ {
			dst := c.buf[col.Offset+i*col.Size : col.Offset+(i+1)*col.Size]
			copy(dst, raw[i*colSize:(i+1)*colSize])
		}
	}

	for {
		savedIdx, err := readTypeIndex(r)
		if err != nil {
			return nil, nil, err
		}
		if savedIdx == typeIndexSentinel {
			break
		}
		liveID, colSize, known := res.Resolve(savedIdx)
		if !known {
			diagnostics = append(diagnostics, fmt.Errorf("chunk: skipping unknown shared type index %d", savedIdx))
			if _, err := io.CopyN(io.Discard, r, int64(colSizeFallback(colSize))); err != nil {
				return nil, nil, err
			}
			continue
		}
		raw := make([]byte, colSize)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, nil, err
		}
		slot, ok := c.sharedSlot(liveID)
		if !ok {
			diagnostics = append(diagnostics, fmt.Errorf("chunk: shared type index %d not part of target archetype, dropping", savedIdx))
			continue
		}
		copy(c.buf[slot.Offset:slot.Offset+slot.Size], raw)
	}

	return c, diagnostics, nil
}

func colSizeFallback(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
