package command

import "testing"

func TestHeadingDelta(t *testing.T) {
	tests := []struct {
		heading int64
		dx, dz  int64
	}{
		{0, 1, 0},
		{1, 0, 1},
		{2, -1, 0},
		{3, 0, -1},
		{4, 1, 0}, // wraps mod 4
	}

	for _, tt := range tests {
		dx, dz := headingDelta(tt.heading)
		if dx != tt.dx || dz != tt.dz {
			t.Errorf("headingDelta(%d) = (%d, %d), want (%d, %d)", tt.heading, dx, dz, tt.dx, tt.dz)
		}
	}
}

func TestHeadingFromDelta(t *testing.T) {
	tests := []struct {
		dx, dz  int64
		want    int64
		wantOK  bool
	}{
		{1, 0, 0, true},
		{0, 1, 1, true},
		{-1, 0, 2, true},
		{0, -1, 3, true},
		{1, 1, 0, false},
		{0, 0, 0, false},
	}

	for _, tt := range tests {
		got, ok := headingFromDelta(tt.dx, tt.dz)
		if ok != tt.wantOK {
			t.Errorf("headingFromDelta(%d, %d) ok = %v, want %v", tt.dx, tt.dz, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("headingFromDelta(%d, %d) = %d, want %d", tt.dx, tt.dz, got, tt.want)
		}
	}
}

func TestParseCoordsTriple(t *testing.T) {
	got, ok := parseCoordsTriple([]any{float64(1), float64(2), float64(3)})
	if !ok {
		t.Fatal("expected parseCoordsTriple to succeed for a 3-element list")
	}
	if got.X != 1 || got.Y != 2 || got.Z != 3 {
		t.Errorf("parseCoordsTriple = %+v, want {1 2 3}", got)
	}

	if _, ok := parseCoordsTriple([]any{1, 2}); ok {
		t.Error("parseCoordsTriple should fail on a short list")
	}
	if _, ok := parseCoordsTriple("not a list"); ok {
		t.Error("parseCoordsTriple should fail on a non-list value")
	}
}

func TestWithCount(t *testing.T) {
	if got := withCount("turtle.drop", nil); got != "turtle.drop()" {
		t.Errorf("withCount(nil) = %q, want turtle.drop()", got)
	}
	n := 5
	if got := withCount("turtle.drop", &n); got != "turtle.drop(5)" {
		t.Errorf("withCount(5) = %q, want turtle.drop(5)", got)
	}
}
