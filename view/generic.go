package view

import (
	"unsafe"

	"github.com/kestrelworks/ecs/registry"
)

// columnPtr returns a typed pointer to element i of the named column inside
// chunk-local base/stride, or nil if the column is absent from this chunk.
func columnPtr[T any](base []byte, stride, i int, ok bool) *T {
	if !ok {
		return nil
	}
	return (*T)(unsafe.Pointer(&base[i*stride]))
}

// EachChunk1 iterates every live row of one chunk, handing back a typed
// pointer into the chunk's column for A. The pointer aliases live storage;
// writes through it are immediately visible to every other reader of the
// same chunk, so callers must hold whatever lock the caller's scheduler
// uses to serialize writers of A.
func EachChunk1[A any](m MatchedChunk, typeA registry.TypeID, fn func(id int64, a *A)) {
	baseA, strideA, okA := m.Chunk.ColumnBase(typeA)
	for i := 0; i < m.Chunk.Size(); i++ {
		fn(m.Chunk.EntityID(i), columnPtr[A](baseA, strideA, i, okA))
	}
}

// EachChunk2 is EachChunk1 generalized to two component columns.
func EachChunk2[A, B any](m MatchedChunk, typeA, typeB registry.TypeID, fn func(id int64, a *A, b *B)) {
	baseA, strideA, okA := m.Chunk.ColumnBase(typeA)
	baseB, strideB, okB := m.Chunk.ColumnBase(typeB)
	for i := 0; i < m.Chunk.Size(); i++ {
		fn(m.Chunk.EntityID(i),
			columnPtr[A](baseA, strideA, i, okA),
			columnPtr[B](baseB, strideB, i, okB))
	}
}

// EachChunk3 is EachChunk1 generalized to three component columns.
func EachChunk3[A, B, C any](m MatchedChunk, typeA, typeB, typeC registry.TypeID, fn func(id int64, a *A, b *B, c *C)) {
	baseA, strideA, okA := m.Chunk.ColumnBase(typeA)
	baseB, strideB, okB := m.Chunk.ColumnBase(typeB)
	baseC, strideC, okC := m.Chunk.ColumnBase(typeC)
	for i := 0; i < m.Chunk.Size(); i++ {
		fn(m.Chunk.EntityID(i),
			columnPtr[A](baseA, strideA, i, okA),
			columnPtr[B](baseB, strideB, i, okB),
			columnPtr[C](baseC, strideC, i, okC))
	}
}

// EachChunk4 is EachChunk1 generalized to four component columns.
func EachChunk4[A, B, C, D any](m MatchedChunk, typeA, typeB, typeC, typeD registry.TypeID, fn func(id int64, a *A, b *B, c *C, d *D)) {
	baseA, strideA, okA := m.Chunk.ColumnBase(typeA)
	baseB, strideB, okB := m.Chunk.ColumnBase(typeB)
	baseC, strideC, okC := m.Chunk.ColumnBase(typeC)
	baseD, strideD, okD := m.Chunk.ColumnBase(typeD)
	for i := 0; i < m.Chunk.Size(); i++ {
		fn(m.Chunk.EntityID(i),
			columnPtr[A](baseA, strideA, i, okA),
			columnPtr[B](baseB, strideB, i, okB),
			columnPtr[C](baseC, strideC, i, okC),
			columnPtr[D](baseD, strideD, i, okD))
	}
}

// Each1 runs fn over every row of every chunk matched by v.
func Each1[A any](v *View, typeA registry.TypeID, fn func(id int64, a *A)) {
	for _, m := range v.Matched {
		EachChunk1[A](m, typeA, fn)
	}
}

// Each2 runs fn over every row of every chunk matched by v.
func Each2[A, B any](v *View, typeA, typeB registry.TypeID, fn func(id int64, a *A, b *B)) {
	for _, m := range v.Matched {
		EachChunk2[A, B](m, typeA, typeB, fn)
	}
}

// Each3 runs fn over every row of every chunk matched by v.
func Each3[A, B, C any](v *View, typeA, typeB, typeC registry.TypeID, fn func(id int64, a *A, b *B, c *C)) {
	for _, m := range v.Matched {
		EachChunk3[A, B, C](m, typeA, typeB, typeC, fn)
	}
}

// Each4 runs fn over every row of every chunk matched by v.
func Each4[A, B, C, D any](v *View, typeA, typeB, typeC, typeD registry.TypeID, fn func(id int64, a *A, b *B, c *C, d *D)) {
	for _, m := range v.Matched {
		EachChunk4[A, B, C, D](m, typeA, typeB, typeC, typeD, fn)
	}
}

// Shared returns a typed pointer to the chunk's per-chunk singleton for
// type t, or nil if the chunk has no such shared slot.
func Shared[T any](m MatchedChunk, t registry.TypeID) *T {
	b := m.Chunk.SharedPtr(t)
	if b == nil {
		return nil
	}
	return (*T)(unsafe.Pointer(&b[0]))
}

// FilterShared narrows matched to chunks whose shared singleton for t
// equals value, per the chunk's registered (or bytewise) equality.
func FilterShared(matched []MatchedChunk, t registry.TypeID, value []byte) []MatchedChunk {
	var out []MatchedChunk
	for _, m := range matched {
		if m.Chunk.SharedEq(t, value) {
			out = append(out, m)
		}
	}
	return out
}
