// Package typeset implements the bitset primitive used to classify
// archetypes and express component queries. It is deliberately independent
// of the registry package: a TypeSet is just a packed bitset indexed by
// registry.TypeID. Cross-set comparisons treat the shorter operand as if
// padded with zero words to the length of the longer one.
package typeset

import (
	"math/bits"

	"github.com/kestrelworks/ecs/registry"
)

const wordBits = 64

// TypeSet is a bitset over registry.TypeID. The zero value is the empty
// set.
type TypeSet struct {
	words []uint64
}

// New returns an empty set with enough backing storage for size bits.
func New(size int) TypeSet {
	return TypeSet{words: make([]uint64, wordCount(size))}
}

func wordCount(size int) int {
	if size <= 0 {
		return 0
	}
	return (size + wordBits - 1) / wordBits
}

// Of builds a set containing exactly the given ids, sized to the registry.
func Of(size int, ids ...registry.TypeID) TypeSet {
	s := New(size)
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *TypeSet) ensureWord(word int) {
	if word < len(s.words) {
		return
	}
	grown := make([]uint64, word+1)
	copy(grown, s.words)
	s.words = grown
}

// Add sets the bit for id.
func (s *TypeSet) Add(id registry.TypeID) {
	word, bit := int(id)/wordBits, uint(id)%wordBits
	s.ensureWord(word)
	s.words[word] |= 1 << bit
}

// Remove clears the bit for id.
func (s *TypeSet) Remove(id registry.TypeID) {
	word, bit := int(id)/wordBits, uint(id)%wordBits
	if word >= len(s.words) {
		return
	}
	s.words[word] &^= 1 << bit
}

// Contains reports whether id's bit is set.
func (s TypeSet) Contains(id registry.TypeID) bool {
	word, bit := int(id)/wordBits, uint(id)%wordBits
	if word >= len(s.words) {
		return false
	}
	return s.words[word]&(1<<bit) != 0
}

// IsEmpty reports whether no bits are set. An empty set is the wire-format
// termination sentinel.
func (s TypeSet) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Cardinality returns the number of set bits.
func (s TypeSet) Cardinality() int {
	count := 0
	for _, w := range s.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// Union returns a new set containing the bits of both operands.
func Union(a, b TypeSet) TypeSet {
	n := max(len(a.words), len(b.words))
	out := TypeSet{words: make([]uint64, n)}
	for i := 0; i < n; i++ {
		out.words[i] = wordAt(a, i) | wordAt(b, i)
	}
	return out
}

// Subtract returns a new set containing a's bits with b's bits cleared.
func Subtract(a, b TypeSet) TypeSet {
	out := TypeSet{words: make([]uint64, len(a.words))}
	for i := range a.words {
		out.words[i] = a.words[i] &^ wordAt(b, i)
	}
	return out
}

// Intersect returns a new set containing bits present in both operands.
func Intersect(a, b TypeSet) TypeSet {
	n := min(len(a.words), len(b.words))
	out := TypeSet{words: make([]uint64, n)}
	for i := 0; i < n; i++ {
		out.words[i] = a.words[i] & b.words[i]
	}
	return out
}

func wordAt(s TypeSet, i int) uint64 {
	if i >= len(s.words) {
		return 0
	}
	return s.words[i]
}

// Equal reports bit-pattern equality after normalizing both sets to the
// longer of the two word slices.
func Equal(a, b TypeSet) bool {
	n := max(len(a.words), len(b.words))
	for i := 0; i < n; i++ {
		if wordAt(a, i) != wordAt(b, i) {
			return false
		}
	}
	return true
}

// Contains reports whether every bit set in sub is also set in super (sub
// is a subset).
func Contains(super, sub TypeSet) bool {
	for i, w := range sub.words {
		if wordAt(super, i)&w != w {
			return false
		}
	}
	return true
}

// Disjoint reports whether a and b share no set bits.
func Disjoint(a, b TypeSet) bool {
	n := min(len(a.words), len(b.words))
	for i := 0; i < n; i++ {
		if a.words[i]&b.words[i] != 0 {
			return false
		}
	}
	return true
}

// Each calls fn once for every set bit, in ascending order.
func (s TypeSet) Each(fn func(registry.TypeID)) {
	for wi, w := range s.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			fn(registry.TypeID(wi*wordBits + bit))
			w &= w - 1
		}
	}
}

// Clone returns an independent copy.
func (s TypeSet) Clone() TypeSet {
	out := TypeSet{words: make([]uint64, len(s.words))}
	copy(out.words, s.words)
	return out
}

// Bytes returns the set's little-endian byte representation for the wire
// format.
func (s TypeSet) Bytes() []byte {
	out := make([]byte, len(s.words)*8)
	for i, w := range s.words {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(w >> (8 * b))
		}
	}
	return out
}

// FromBytes reconstructs a TypeSet from its wire-format byte representation.
func FromBytes(data []byte) TypeSet {
	words := make([]uint64, (len(data)+7)/8)
	for i, b := range data {
		words[i/8] |= uint64(b) << (8 * uint(i%8))
	}
	return TypeSet{words: words}
}

// FilterByKind returns the subset of s whose descriptors in reg have kind.
func FilterByKind(s TypeSet, reg *registry.Registry, kind registry.Kind) TypeSet {
	out := New(reg.Count())
	s.Each(func(id registry.TypeID) {
		if d, ok := reg.Descriptor(id); ok && d.Kind == kind {
			out.Add(id)
		}
	})
	return out
}

// FilterSavable returns the subset of s whose descriptors are neither
// DontSave nor State; these are the only types a save stream writes.
func FilterSavable(s TypeSet, reg *registry.Registry) TypeSet {
	out := New(reg.Count())
	s.Each(func(id registry.TypeID) {
		if d, ok := reg.Descriptor(id); ok && d.Kind != registry.DontSave && d.Kind != registry.State {
			out.Add(id)
		}
	})
	return out
}

// FilterState returns the subset of s whose descriptors have kind State.
func FilterState(s TypeSet, reg *registry.Registry) TypeSet {
	return FilterByKind(s, reg, registry.State)
}

// Query pairs required/excluded membership predicates with read/write
// overlay sets the scheduler uses for lock acquisition.
type Query struct {
	Required TypeSet
	Excluded TypeSet
	Read     TypeSet
	Write    TypeSet
}

// Matches reports whether candidate satisfies q: required ⊆ candidate and
// excluded ∩ candidate = ∅.
func (q Query) Matches(candidate TypeSet) bool {
	return Contains(candidate, q.Required) && Disjoint(q.Excluded, candidate)
}
