// Package registry assigns every component type a dense, stable index and
// records the metadata needed by the rest of the store: size, alignment,
// kind, and name.
package registry

import (
	"fmt"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies how a component type participates in storage, save/load,
// and entity lifecycle.
type Kind uint8

const (
	// Regular components live in a per-entity SoA column and save normally.
	Regular Kind = iota
	// DontSave components live in a per-entity column but are never written
	// to a save stream.
	DontSave
	// Shared components store one value per chunk instead of per entity.
	Shared
	// State components block real deletion: a destroyed entity carrying a
	// State component migrates to an archetype holding only its state
	// components plus DeletedEntity.
	State
	// Internal components are framework-owned (DontSaveEntity, DeletedEntity)
	// and are always written as-is during save.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "Regular"
	case DontSave:
		return "DontSave"
	case Shared:
		return "Shared"
	case State:
		return "State"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// TypeID is the dense, monotonic, process-stable index assigned at
// registration. Indices never shift once issued.
type TypeID int32

// Descriptor records everything the store needs to know about one
// registered component type.
type Descriptor struct {
	Index     TypeID
	Name      string
	Size      int
	Align     int
	Kind      Kind
	Construct func(dst []byte)
	Equal     func(a, b []byte) bool
}

// well-known internal type names, always pre-registered.
const (
	DontSaveEntityName = "DontSaveEntity"
	DeletedEntityName  = "DeletedEntity"
)

// ErrAlreadyRegistered is returned when a name collides with an existing
// registration (including after Unicode NFC normalization).
var ErrAlreadyRegistered = fmt.Errorf("registry: component already registered")

// Registry is the process-wide component type table. It is safe for
// concurrent use; registration is expected to happen during start-up but is
// not restricted to it.
type Registry struct {
	mu          sync.RWMutex
	byName      map[string]TypeID
	descriptors []Descriptor

	// DontSaveEntity and DeletedEntity are pre-registered at construction
	// and are always present at indices 0 and 1.
	DontSaveEntity TypeID
	DeletedEntity  TypeID
}

// New constructs a registry with the two well-known internal types already
// registered.
func New() *Registry {
	r := &Registry{
		byName: make(map[string]TypeID),
	}
	r.DontSaveEntity = r.mustRegister(DontSaveEntityName, 0, 1, Internal, nil, nil)
	r.DeletedEntity = r.mustRegister(DeletedEntityName, 0, 1, Internal, nil, nil)
	return r
}

func (r *Registry) mustRegister(name string, size, align int, kind Kind, construct func([]byte), equal func(a, b []byte) bool) TypeID {
	id, err := r.Register(name, size, align, kind, construct, equal)
	if err != nil {
		panic(err)
	}
	return id
}

// Register assigns a new dense TypeID to name. size may be 0 for marker
// (tag) types. construct default-initializes a freshly allocated slot of
// Size bytes and may be nil (the slot is left zeroed). equal compares two
// slots byte-for-byte by default when nil; callers with non-memcpy-safe
// components should supply a real equality function or accept that shared
// component change detection falls back to bytewise comparison.
func (r *Registry) Register(name string, size, align int, kind Kind, construct func([]byte), equal func(a, b []byte) bool) (TypeID, error) {
	normalized := norm.NFC.String(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[normalized]; exists {
		return 0, fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	if align <= 0 {
		align = 1
	}

	id := TypeID(len(r.descriptors))
	r.descriptors = append(r.descriptors, Descriptor{
		Index:     id,
		Name:      normalized,
		Size:      size,
		Align:     align,
		Kind:      kind,
		Construct: construct,
		Equal:     equal,
	})
	r.byName[normalized] = id
	return id, nil
}

// LookupByName returns the TypeID registered for name, if any.
func (r *Registry) LookupByName(name string) (TypeID, bool) {
	normalized := norm.NFC.String(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[normalized]
	return id, ok
}

// Descriptor returns a copy of the descriptor for id. The second return
// value is false if id is out of range.
func (r *Registry) Descriptor(id TypeID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || int(id) >= len(r.descriptors) {
		return Descriptor{}, false
	}
	return r.descriptors[id], true
}

// Count returns the number of registered types, which is also the bit
// width required by any typeset.TypeSet built against this registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// Each calls fn once per registered descriptor, in index order. fn must not
// mutate the registry.
func (r *Registry) Each(fn func(Descriptor)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.descriptors {
		fn(d)
	}
}

// Equal compares two byte slots for type id, falling back to a bytewise
// comparison when no custom equality function was registered.
func (r *Registry) Equal(id TypeID, a, b []byte) bool {
	d, ok := r.Descriptor(id)
	if !ok {
		return false
	}
	if d.Equal != nil {
		return d.Equal(a, b)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
