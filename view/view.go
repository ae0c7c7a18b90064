// Package view implements lazy, read-optimized iteration over the chunks
// of every archetype matching a type-query. A View never copies component
// data: it captures chunk-local column pointers once per chunk and hands
// them back through typed accessors in the generic.go helpers.
package view

import (
	"github.com/kestrelworks/ecs/archetype"
	"github.com/kestrelworks/ecs/chunk"
	"github.com/kestrelworks/ecs/typeset"
)

// MatchedChunk names one live, non-empty chunk that satisfied a query's
// required/excluded type-set test.
type MatchedChunk struct {
	Archetype  *archetype.Archetype
	ChunkIndex int
	Chunk      *chunk.Chunk
}

// Materialize scans archetypes once and returns every live chunk whose
// owning archetype matches q. Materialization is intentionally lazy with
// respect to component data: only chunk pointers and the matching decision
// are computed up front; column pointers are captured later, per chunk, by
// the generic Each* helpers.
func Materialize(archetypes []*archetype.Archetype, q typeset.Query) []MatchedChunk {
	var out []MatchedChunk
	for _, a := range archetypes {
		if a == nil || !a.Matches(q) {
			continue
		}
		for ci, c := range a.Chunks() {
			if c == nil || c.Size() == 0 {
				continue
			}
			out = append(out, MatchedChunk{Archetype: a, ChunkIndex: ci, Chunk: c})
		}
	}
	return out
}

// View is a materialized, re-usable handle on the chunks matching a query
// at the moment Materialize ran. Structural changes to the world after
// materialization are not reflected; callers that mutate the world during
// iteration should re-materialize on the next tick, the same discipline the
// scheduler uses by draining command buffers only at tick boundaries.
type View struct {
	Query   typeset.Query
	Matched []MatchedChunk
}

// New materializes a view immediately.
func New(archetypes []*archetype.Archetype, q typeset.Query) *View {
	return &View{Query: q, Matched: Materialize(archetypes, q)}
}

// Empty reports whether the view matched no live entities.
func (v *View) Empty() bool {
	for _, m := range v.Matched {
		if m.Chunk.Size() > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of entities across every matched chunk.
func (v *View) Count() int {
	n := 0
	for _, m := range v.Matched {
		n += m.Chunk.Size()
	}
	return n
}
