package view_test

import (
	"testing"

	"github.com/kestrelworks/ecs/archetype"
	"github.com/kestrelworks/ecs/registry"
	"github.com/kestrelworks/ecs/typeset"
	"github.com/kestrelworks/ecs/view"
)

type position struct{ X, Y float64 }
type velocity struct{ DX, DY float64 }

func buildWorld(t *testing.T) (*registry.Registry, registry.TypeID, registry.TypeID, []*archetype.Archetype) {
	t.Helper()
	reg := registry.New()
	pos, err := reg.Register("Position", 16, 8, registry.Regular, nil, nil)
	if err != nil {
		t.Fatalf("register Position: %v", err)
	}
	vel, err := reg.Register("Velocity", 16, 8, registry.Regular, nil, nil)
	if err != nil {
		t.Fatalf("register Velocity: %v", err)
	}

	posOnly := archetype.New(reg, typeset.Of(reg.Count(), pos))
	posVel := archetype.New(reg, typeset.Of(reg.Count(), pos, vel))

	if _, err := posOnly.AllocateForNew(1, nil); err != nil {
		t.Fatalf("allocate posOnly: %v", err)
	}
	if _, err := posVel.AllocateForNew(2, nil); err != nil {
		t.Fatalf("allocate posVel: %v", err)
	}
	if _, err := posVel.AllocateForNew(3, nil); err != nil {
		t.Fatalf("allocate posVel: %v", err)
	}

	return reg, pos, vel, []*archetype.Archetype{posOnly, posVel}
}

func TestMaterializeMatchesOnlyQualifyingArchetypes(t *testing.T) {
	reg, pos, vel, archetypes := buildWorld(t)

	q := typeset.Query{Required: typeset.Of(reg.Count(), pos, vel)}
	v := view.New(archetypes, q)
	if v.Count() != 2 {
		t.Fatalf("expected 2 entities with both Position and Velocity, got %d", v.Count())
	}
}

func TestEach1WritesThroughAlias(t *testing.T) {
	reg, pos, _, archetypes := buildWorld(t)

	q := typeset.Query{Required: typeset.Of(reg.Count(), pos)}
	v := view.New(archetypes, q)

	seen := map[int64]bool{}
	view.Each1(v, pos, func(id int64, p *position) {
		seen[id] = true
		p.X = float64(id) * 10
	})
	if len(seen) != 3 {
		t.Fatalf("expected to visit 3 entities, saw %d", len(seen))
	}

	// Re-iterate and confirm writes stuck.
	view.Each1(v, pos, func(id int64, p *position) {
		want := float64(id) * 10
		if p.X != want {
			t.Fatalf("entity %d: expected X=%v, got %v", id, want, p.X)
		}
	})
}

func TestEach2OnlyVisitsMatchingChunks(t *testing.T) {
	reg, pos, vel, archetypes := buildWorld(t)

	q := typeset.Query{Required: typeset.Of(reg.Count(), pos, vel)}
	v := view.New(archetypes, q)

	count := 0
	view.Each2(v, pos, vel, func(id int64, p *position, vl *velocity) {
		count++
		if p == nil || vl == nil {
			t.Fatalf("expected non-nil component pointers for entity %d", id)
		}
	})
	if count != 2 {
		t.Fatalf("expected 2 entities visited, got %d", count)
	}
}

func TestFilterShared(t *testing.T) {
	reg := registry.New()
	team, err := reg.Register("Team", 4, 4, registry.Shared, nil, nil)
	if err != nil {
		t.Fatalf("register Team: %v", err)
	}
	a := archetype.New(reg, typeset.Of(reg.Count(), team))
	red := []byte{1, 0, 0, 0}
	blue := []byte{2, 0, 0, 0}
	if _, err := a.AllocateForNew(1, map[registry.TypeID][]byte{team: red}); err != nil {
		t.Fatalf("allocate red: %v", err)
	}
	if _, err := a.AllocateForNew(2, map[registry.TypeID][]byte{team: blue}); err != nil {
		t.Fatalf("allocate blue: %v", err)
	}

	matched := view.Materialize([]*archetype.Archetype{a}, typeset.Query{})
	redOnly := view.FilterShared(matched, team, red)
	if len(redOnly) != 1 {
		t.Fatalf("expected exactly 1 chunk with the red team value, got %d", len(redOnly))
	}
}
