package routine

// vec3 is a lightweight integer coordinate used throughout the subroutine
// library's local pose tracking, distinct from store.Coords so these
// algorithms stay independent of the storage layer's shape.
type vec3 struct{ X, Y, Z int64 }

func (v vec3) add(o vec3) vec3 { return vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v vec3) sub(o vec3) vec3 { return vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// l1 is the Manhattan (L1) distance between two points.
func l1(a, b vec3) int64 {
	return absInt64(a.X-b.X) + absInt64(a.Y-b.Y) + absInt64(a.Z-b.Z)
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// dirVecs maps a heading (0..3) to its horizontal unit step, matching
// command.headingDelta: 0:+X, 1:+Z, 2:-X, 3:-Z.
var dirVecs = [4]vec3{
	{X: 1}, {Z: 1}, {X: -1}, {Z: -1},
}

// faceDistance returns how many right turns (0..3) it takes to rotate from
// "from" to face "to".
func faceDistance(from, to int) int {
	return ((to-from)%4 + 4) % 4
}

func configInt(cfg map[string]any, key string, def int) int {
	if cfg == nil {
		return def
	}
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func configVec3(cfg map[string]any) (vec3, bool) {
	if cfg == nil {
		return vec3{}, false
	}
	x, okX := cfg["x"]
	y, okY := cfg["y"]
	z, okZ := cfg["z"]
	if !okX || !okY || !okZ {
		return vec3{}, false
	}
	return vec3{X: toI64(x), Y: toI64(y), Z: toI64(z)}, true
}

func toI64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
