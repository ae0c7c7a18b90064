// Package chunk implements the fixed-size, struct-of-arrays storage block
// that an archetype subdivides its entities into. A Chunk never grows past
// its construction-time capacity; once full, the owning archetype allocates
// a sibling chunk.
package chunk

import (
	"fmt"

	"github.com/kestrelworks/ecs/registry"
)

// Bytes is the fixed total byte capacity of every chunk, a compile-time
// constant.
const Bytes = 16 * 1024

const entityIDSize = 8 // int64

// Column describes one non-shared, per-entity SoA column inside a chunk's
// buffer.
type Column struct {
	Type   registry.TypeID
	Size   int
	Align  int
	Offset int
}

// SharedSlot describes one per-chunk singleton shared-component value.
type SharedSlot struct {
	Type   registry.TypeID
	Size   int
	Align  int
	Offset int
}

// Chunk is a fixed-capacity block laid out as:
//
//	[entity_id × N] [column_0 × N] [column_1 × N] … [shared_0 × 1] [shared_1 × 1] …
//
// N is computed once at construction from the archetype's column set and is
// fixed for the chunk's lifetime.
type Chunk struct {
	reg      *registry.Registry
	buf      []byte
	capacity int // N
	size     int

	columns []Column
	shared  []SharedSlot
}

func alignUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// New constructs a chunk for an archetype whose non-shared types are
// nonShared and whose shared types are shared, both given as registry type
// IDs. Capacity N is derived as:
//
//	usable    = Bytes − Σ(shared_sizes) − max_alignment·num_columns
//	per_entity = sizeof(entity_id) + Σ(non_shared_sizes)
//	N         = floor(usable / per_entity)
func New(reg *registry.Registry, nonShared, shared []registry.TypeID) (*Chunk, error) {
	nonSharedDescs := make([]registry.Descriptor, len(nonShared))
	for i, id := range nonShared {
		d, ok := reg.Descriptor(id)
		if !ok {
			return nil, fmt.Errorf("chunk: unknown type id %d", id)
		}
		nonSharedDescs[i] = d
	}
	sharedDescs := make([]registry.Descriptor, len(shared))
	for i, id := range shared {
		d, ok := reg.Descriptor(id)
		if !ok {
			return nil, fmt.Errorf("chunk: unknown shared type id %d", id)
		}
		sharedDescs[i] = d
	}

	maxAlign := entityIDSize
	sumShared := 0
	for _, d := range sharedDescs {
		sumShared += d.Size
		if d.Align > maxAlign {
			maxAlign = d.Align
		}
	}
	sumNonShared := 0
	for _, d := range nonSharedDescs {
		sumNonShared += d.Size
		if d.Align > maxAlign {
			maxAlign = d.Align
		}
	}

	numColumns := len(nonSharedDescs)
	usable := Bytes - sumShared - maxAlign*numColumns
	perEntity := entityIDSize + sumNonShared
	if perEntity <= 0 {
		perEntity = entityIDSize
	}
	n := 0
	if usable > 0 {
		n = usable / perEntity
	}
	if n < 1 {
		n = 1 // columns too large for even one entity still report capacity one; the layout check below rejects an overflow
	}

	c := &Chunk{
		reg:      reg,
		buf:      make([]byte, Bytes),
		capacity: n,
	}

	offset := 0
	offset = alignUp(offset, entityIDSize)
	entityOffset := offset
	offset += n * entityIDSize
	_ = entityOffset // entity ids always start at byte 0 by construction

	for _, d := range nonSharedDescs {
		offset = alignUp(offset, d.Align)
		c.columns = append(c.columns, Column{Type: d.Index, Size: d.Size, Align: d.Align, Offset: offset})
		offset += n * d.Size
	}
	for _, d := range sharedDescs {
		offset = alignUp(offset, d.Align)
		c.shared = append(c.shared, SharedSlot{Type: d.Index, Size: d.Size, Align: d.Align, Offset: offset})
		offset += d.Size
	}

	if offset > len(c.buf) {
		return nil, fmt.Errorf("chunk: computed layout (%d bytes) exceeds chunk capacity (%d bytes)", offset, len(c.buf))
	}

	for _, s := range c.shared {
		if d, ok := reg.Descriptor(s.Type); ok && d.Construct != nil {
			d.Construct(c.buf[s.Offset : s.Offset+s.Size])
		}
	}

	return c, nil
}

// Capacity returns N, the maximum number of entities this chunk can hold.
func (c *Chunk) Capacity() int { return c.capacity }

// Size returns the number of live entities currently stored.
func (c *Chunk) Size() int { return c.size }

// Full reports whether the chunk has no remaining free slots.
func (c *Chunk) Full() bool { return c.size >= c.capacity }

func (c *Chunk) entityIDBytes(i int) []byte {
	off := i * entityIDSize
	return c.buf[off : off+entityIDSize]
}

// EntityID returns the entity id stored at element i.
func (c *Chunk) EntityID(i int) int64 {
	b := c.entityIDBytes(i)
	return int64(uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56)
}

func (c *Chunk) setEntityID(i int, id int64) {
	b := c.entityIDBytes(i)
	u := uint64(id)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	b[4], b[5], b[6], b[7] = byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56)
}

// Columns exposes the chunk's non-shared column layout.
func (c *Chunk) Columns() []Column { return c.columns }

// SharedSlots exposes the chunk's shared-singleton layout.
func (c *Chunk) SharedSlots() []SharedSlot { return c.shared }

func (c *Chunk) column(t registry.TypeID) (Column, bool) {
	for _, col := range c.columns {
		if col.Type == t {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnBytes returns the byte slice for type t at element i, or nil if the
// chunk has no such non-shared column.
func (c *Chunk) ColumnBytes(t registry.TypeID, i int) []byte {
	col, ok := c.column(t)
	if !ok {
		return nil
	}
	off := col.Offset + i*col.Size
	return c.buf[off : off+col.Size]
}

// ColumnBase returns the base pointer and element stride for type t, used
// by views to capture absolute iteration pointers once per materialization.
func (c *Chunk) ColumnBase(t registry.TypeID) (base []byte, stride int, ok bool) {
	col, found := c.column(t)
	if !found {
		return nil, 0, false
	}
	return c.buf[col.Offset:], col.Size, true
}

func (c *Chunk) sharedSlot(t registry.TypeID) (SharedSlot, bool) {
	for _, s := range c.shared {
		if s.Type == t {
			return s, true
		}
	}
	return SharedSlot{}, false
}

// SharedPtr returns the byte slice for the per-chunk singleton of type t.
func (c *Chunk) SharedPtr(t registry.TypeID) []byte {
	s, ok := c.sharedSlot(t)
	if !ok {
		return nil
	}
	return c.buf[s.Offset : s.Offset+s.Size]
}

// SharedEq reports whether the chunk's singleton for t equals value,
// falling back to bytewise comparison when the type has no custom equality
// function.
func (c *Chunk) SharedEq(t registry.TypeID, value []byte) bool {
	cur := c.SharedPtr(t)
	if cur == nil {
		return false
	}
	return c.reg.Equal(t, cur, value)
}

// SharedSet overwrites the chunk's singleton for t with value.
func (c *Chunk) SharedSet(t registry.TypeID, value []byte) {
	dst := c.SharedPtr(t)
	if dst == nil {
		return
	}
	copy(dst, value)
}

// Push appends a new entity at the tail, default-constructing every
// non-shared column. It returns the new element index and false if the
// chunk is already full.
func (c *Chunk) Push(id int64) (int, bool) {
	if c.Full() {
		return -1, false
	}
	i := c.size
	c.setEntityID(i, id)
	for _, col := range c.columns {
		dst := c.buf[col.Offset+i*col.Size : col.Offset+(i+1)*col.Size]
		if d, ok := c.reg.Descriptor(col.Type); ok && d.Construct != nil {
			d.Construct(dst)
		} else {
			clear(dst)
		}
	}
	c.size++
	return i, true
}

// PopSwap removes the entity at element i by swapping the tail element into
// its place. It returns the id of the entity that moved into slot i, or
// (0, false) if i was already the tail (no move needed).
func (c *Chunk) PopSwap(i int) (movedID int64, moved bool) {
	last := c.size - 1
	if i == last {
		c.size--
		return 0, false
	}
	movedID = c.EntityID(last)
	c.setEntityID(i, movedID)
	for _, col := range c.columns {
		src := c.buf[col.Offset+last*col.Size : col.Offset+(last+1)*col.Size]
		dst := c.buf[col.Offset+i*col.Size : col.Offset+(i+1)*col.Size]
		copy(dst, src)
	}
	c.size--
	return movedID, true
}

// MoveIn copies the entity at srcIdx of src into a freshly pushed slot of
// c: the entity id is copied, and for every non-shared column of c either
// the matching column of src is copied (if present) or the destination is
// default-constructed. The source slot is left untouched; the caller is
// responsible for popping it afterwards. Shared components are not
// touched — the caller must already have selected a chunk whose shared
// values match.
func (c *Chunk) MoveIn(src *Chunk, srcIdx int) (int, bool) {
	if c.Full() {
		return -1, false
	}
	i := c.size
	c.setEntityID(i, src.EntityID(srcIdx))
	for _, col := range c.columns {
		dst := c.buf[col.Offset+i*col.Size : col.Offset+(i+1)*col.Size]
		if srcBytes := src.ColumnBytes(col.Type, srcIdx); srcBytes != nil {
			copy(dst, srcBytes)
			continue
		}
		if d, ok := c.reg.Descriptor(col.Type); ok && d.Construct != nil {
			d.Construct(dst)
		} else {
			clear(dst)
		}
	}
	c.size++
	return i, true
}
