package chunk_test

import (
	"testing"

	"github.com/kestrelworks/ecs/chunk"
	"github.com/kestrelworks/ecs/registry"
)

func newReg(t *testing.T) (*registry.Registry, registry.TypeID, registry.TypeID) {
	t.Helper()
	reg := registry.New()
	pos, err := reg.Register("Position", 8, 4, registry.Regular, nil, nil)
	if err != nil {
		t.Fatalf("register Position: %v", err)
	}
	vel, err := reg.Register("Velocity", 8, 4, registry.Regular, nil, nil)
	if err != nil {
		t.Fatalf("register Velocity: %v", err)
	}
	return reg, pos, vel
}

func TestNewComputesCapacity(t *testing.T) {
	reg, pos, vel := newReg(t)
	c, err := chunk.New(reg, []registry.TypeID{pos, vel}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Capacity() <= 0 {
		t.Fatalf("expected positive capacity, got %d", c.Capacity())
	}
	if c.Size() != 0 {
		t.Fatalf("expected new chunk to be empty")
	}
}

func TestTagOnlyArchetypeGetsAtLeastCapacityOne(t *testing.T) {
	reg := registry.New()
	c, err := chunk.New(reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Capacity() < 1 {
		t.Fatalf("expected at least capacity 1 for a tag-only archetype, got %d", c.Capacity())
	}
}

func TestPushAndColumnBytes(t *testing.T) {
	reg, pos, _ := newReg(t)
	c, err := chunk.New(reg, []registry.TypeID{pos}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	idx, ok := c.Push(42)
	if !ok {
		t.Fatalf("expected push to succeed")
	}
	if c.EntityID(idx) != 42 {
		t.Fatalf("expected entity id 42, got %d", c.EntityID(idx))
	}
	b := c.ColumnBytes(pos, idx)
	if len(b) != 8 {
		t.Fatalf("expected 8-byte column slot, got %d", len(b))
	}
	b[0] = 0xFF
	if c.ColumnBytes(pos, idx)[0] != 0xFF {
		t.Fatalf("expected column write to be visible through a fresh slice")
	}
}

func TestPushFailsWhenFull(t *testing.T) {
	reg, pos, _ := newReg(t)
	c, err := chunk.New(reg, []registry.TypeID{pos}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := c.Capacity()
	for i := 0; i < n; i++ {
		if _, ok := c.Push(int64(i)); !ok {
			t.Fatalf("push %d: expected success within capacity", i)
		}
	}
	if _, ok := c.Push(int64(n)); ok {
		t.Fatalf("expected push beyond capacity to fail")
	}
}

func TestPopSwapMovesTail(t *testing.T) {
	reg, pos, _ := newReg(t)
	c, err := chunk.New(reg, []registry.TypeID{pos}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	i0, _ := c.Push(10)
	c.ColumnBytes(pos, i0)[0] = 1
	i1, _ := c.Push(20)
	c.ColumnBytes(pos, i1)[0] = 2
	i2, _ := c.Push(30)
	c.ColumnBytes(pos, i2)[0] = 3

	movedID, moved := c.PopSwap(i0)
	if !moved || movedID != 30 {
		t.Fatalf("expected tail entity 30 to move into slot 0, got id=%d moved=%v", movedID, moved)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2 after pop, got %d", c.Size())
	}
	if c.EntityID(i0) != 30 {
		t.Fatalf("expected slot 0 to now hold entity 30, got %d", c.EntityID(i0))
	}
	if c.ColumnBytes(pos, i0)[0] != 3 {
		t.Fatalf("expected slot 0's column data to have moved with the entity")
	}
}

func TestPopSwapOfTailNeedsNoMove(t *testing.T) {
	reg, pos, _ := newReg(t)
	c, err := chunk.New(reg, []registry.TypeID{pos}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	i0, _ := c.Push(10)
	_, moved := c.PopSwap(i0)
	if moved {
		t.Fatalf("expected no move when popping the only/tail element")
	}
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after popping the only element")
	}
}

func TestMoveInCopiesCommonColumnsAndDefaultsMissing(t *testing.T) {
	reg, pos, vel := newReg(t)
	src, err := chunk.New(reg, []registry.TypeID{pos}, nil)
	if err != nil {
		t.Fatalf("New src: %v", err)
	}
	dst, err := chunk.New(reg, []registry.TypeID{pos, vel}, nil)
	if err != nil {
		t.Fatalf("New dst: %v", err)
	}

	srcIdx, _ := src.Push(99)
	src.ColumnBytes(pos, srcIdx)[0] = 7

	dstIdx, ok := dst.MoveIn(src, srcIdx)
	if !ok {
		t.Fatalf("expected MoveIn to succeed")
	}
	if dst.EntityID(dstIdx) != 99 {
		t.Fatalf("expected moved entity id 99, got %d", dst.EntityID(dstIdx))
	}
	if dst.ColumnBytes(pos, dstIdx)[0] != 7 {
		t.Fatalf("expected Position column to be copied across")
	}
	// Velocity has no source column; it should be default-constructed (zeroed).
	velBytes := dst.ColumnBytes(vel, dstIdx)
	for _, b := range velBytes {
		if b != 0 {
			t.Fatalf("expected missing-source column to be zero-initialized, got %v", velBytes)
		}
	}
}

func TestSharedSetAndEq(t *testing.T) {
	reg := registry.New()
	team, err := reg.Register("Team", 4, 4, registry.Shared, nil, nil)
	if err != nil {
		t.Fatalf("register Team: %v", err)
	}
	c, err := chunk.New(reg, nil, []registry.TypeID{team})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	val := []byte{1, 2, 3, 4}
	c.SharedSet(team, val)
	if !c.SharedEq(team, val) {
		t.Fatalf("expected shared value to equal what was just set")
	}
	if c.SharedEq(team, []byte{0, 0, 0, 0}) {
		t.Fatalf("expected differing shared value to compare unequal")
	}
}
