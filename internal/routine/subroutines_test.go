package routine

import (
	"testing"

	"github.com/denecity/taas/internal/store"
)

func TestDefaultOreFilterMatchesSubstringCaseInsensitively(t *testing.T) {
	cases := map[string]bool{
		"minecraft:diamond_ore":    true,
		"minecraft:ORE_chunk":      true,
		"minecraft:cobblestone":    false,
		"minecraft:ancient_debris": false,
	}
	for name, want := range cases {
		if got := defaultOreFilter(name); got != want {
			t.Errorf("defaultOreFilter(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFindCoalSlotLocatesCoal(t *testing.T) {
	inv := map[int]store.InventorySlot{
		1: {Name: "minecraft:cobblestone", Count: 64},
		5: {Name: "minecraft:coal", Count: 12},
	}
	if got := findCoalSlot(inv); got != 5 {
		t.Errorf("findCoalSlot = %d, want 5", got)
	}
}

func TestFindCoalSlotReturnsZeroWhenAbsent(t *testing.T) {
	inv := map[int]store.InventorySlot{
		1: {Name: "minecraft:cobblestone", Count: 64},
	}
	if got := findCoalSlot(inv); got != 0 {
		t.Errorf("findCoalSlot = %d, want 0", got)
	}
}

func TestReverseInPlace(t *testing.T) {
	v := []vec3{{X: 1}, {X: 2}, {X: 3}}
	reverse(v)
	want := []vec3{{X: 3}, {X: 2}, {X: 1}}
	for i := range want {
		if v[i] != want[i] {
			t.Errorf("reverse()[%d] = %+v, want %+v", i, v[i], want[i])
		}
	}
}

func TestHeadingFromDeltaCardinalOnly(t *testing.T) {
	tests := []struct {
		dx, dz int64
		want   int64
		wantOK bool
	}{
		{1, 0, 0, true},
		{0, 1, 1, true},
		{-1, 0, 2, true},
		{0, -1, 3, true},
		{1, 1, 0, false},
	}
	for _, tt := range tests {
		got, ok := headingFromDelta(tt.dx, tt.dz)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("headingFromDelta(%d, %d) = (%d, %v), want (%d, %v)",
				tt.dx, tt.dz, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestChunkOriginFloorsTowardNegativeInfinity(t *testing.T) {
	tests := []struct {
		x, z  int64
		wantX int64
		wantZ int64
	}{
		{0, 0, 0, 0},
		{15, 15, 0, 0},
		{16, 31, 16, 16},
		{-1, -1, -16, -16},
		{-16, -17, -16, -32},
	}
	for _, tt := range tests {
		gotX, gotZ := chunkOrigin(tt.x, tt.z)
		if gotX != tt.wantX || gotZ != tt.wantZ {
			t.Errorf("chunkOrigin(%d, %d) = (%d, %d), want (%d, %d)", tt.x, tt.z, gotX, gotZ, tt.wantX, tt.wantZ)
		}
	}
}

func TestCountEmptySlotsTreatsAbsentAndBlankAsEmpty(t *testing.T) {
	inv := map[int]store.InventorySlot{
		1: {Name: "minecraft:coal", Count: 12},
		2: {Name: "", Count: 0},
	}
	got := countEmptySlotsFromInventory(inv)
	if got != 15 {
		t.Errorf("countEmptySlotsFromInventory = %d, want 15 (14 absent + 1 blank)", got)
	}
}

func TestVec3AddSub(t *testing.T) {
	a := vec3{X: 1, Y: 2, Z: 3}
	b := vec3{X: 10, Y: 20, Z: 30}
	sum := a.add(b)
	if sum != (vec3{X: 11, Y: 22, Z: 33}) {
		t.Errorf("add = %+v", sum)
	}
	diff := sum.sub(a)
	if diff != b {
		t.Errorf("sub = %+v, want %+v", diff, b)
	}
}
