package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/denecity/taas/internal/store"
)

// DetectState runs the one-time background state detection a newly
// connected agent gets (spec §4.C′): fuel, GPS coordinates, inventory,
// label, and — if a non-origin position is already known — a heading
// probe. Grounded on original_source/backend/turtle.py's
// _detect_real_state, with the heading-probe correction spec.md mandates
// (see DESIGN.md: heading subtraction mod 4).
func DetectState(ctx context.Context, a *Agent) {
	if fuel, err := a.eval(ctx, "get_fuel_level", "turtle.getFuelLevel()"); err == nil {
		if f, ok := toInt64(fuel); ok {
			_ = a.Store.Update(ctx, a.ID, store.Patch{FuelLevel: &f})
		}
	}

	var coords *store.Coords
	if loc, err := a.eval(ctx, "get_location",
		"(function() local x,y,z=gps.locate(2); return x,y,z end)()"); err == nil {
		if c, ok := parseCoordsTriple(loc); ok {
			coords = &c
			_ = a.Store.Update(ctx, a.ID, store.Patch{Coords: coords})
		}
	}

	if _, err := a.GetInventoryDetails(ctx); err != nil {
		a.logger.Warn("lifecycle: inventory detection failed", zap.Error(err))
	}

	if label, err := a.eval(ctx, "set_label", "os.getComputerLabel()"); err == nil {
		if s, ok := label.(string); ok && s != "" {
			_ = a.Store.SetLabel(ctx, a.ID, s)
		}
	}

	if coords != nil && !(coords.X == 0 && coords.Y == 0 && coords.Z == 0) {
		a.probeHeading(ctx, *coords)
	}
}

// probeHeading rotates right looking for a facing with no block in front
// (inspect() reporting absent), moves one step forward and back to measure
// the resulting coordinate delta, then restores the original rotation.
// The rotation count accumulated while searching is subtracted, mod 4, from
// the delta-derived heading to correct for the fact the measurement move
// happens at the rotated facing, not the restored one.
func (a *Agent) probeHeading(ctx context.Context, loc1 store.Coords) {
	rotations := 0
	found := false

	for i := 0; i < 4; i++ {
		res, err := a.inspect(ctx, "inspect", "turtle.inspect")
		if err != nil {
			break
		}
		if !res.Present {
			found = true
			break
		}
		if ok, _ := a.sendOK(ctx, "turn_right", "turtle.turnRight()"); !ok {
			break
		}
		rotations++
	}

	if !found {
		// Restore orientation: rotations rights were applied, undo with the
		// same number of lefts.
		for i := 0; i < rotations; i++ {
			_, _ = a.sendOK(ctx, "turn_left", "turtle.turnLeft()")
		}
		return
	}

	movedForward, _ := a.sendOK(ctx, "forward", "turtle.forward()")
	if !movedForward {
		for i := 0; i < rotations; i++ {
			_, _ = a.sendOK(ctx, "turn_left", "turtle.turnLeft()")
		}
		return
	}

	loc2Raw, err := a.eval(ctx, "get_location",
		"(function() local x,y,z=gps.locate(2); return x,y,z end)()")
	_, _ = a.sendOK(ctx, "back", "turtle.back()")
	for i := 0; i < rotations; i++ {
		_, _ = a.sendOK(ctx, "turn_left", "turtle.turnLeft()")
	}

	if err != nil {
		return
	}
	loc2, ok := parseCoordsTriple(loc2Raw)
	if !ok {
		return
	}

	dx, dz := loc2.X-loc1.X, loc2.Z-loc1.Z
	headingVal, ok := headingFromDelta(dx, dz)
	if !ok {
		return
	}

	final := ((headingVal-int64(rotations))%4 + 4) % 4
	_ = a.Store.Update(ctx, a.ID, store.Patch{Heading: &final})
}

func headingFromDelta(dx, dz int64) (int64, bool) {
	switch {
	case dx == 1 && dz == 0:
		return 0, true
	case dz == 1 && dx == 0:
		return 1, true
	case dx == -1 && dz == 0:
		return 2, true
	case dz == -1 && dx == 0:
		return 3, true
	default:
		return 0, false
	}
}

func parseCoordsTriple(raw any) (store.Coords, bool) {
	list, ok := raw.([]any)
	if !ok || len(list) < 3 {
		return store.Coords{}, false
	}
	x, ok1 := toInt64(list[0])
	y, ok2 := toInt64(list[1])
	z, ok3 := toInt64(list[2])
	if !ok1 || !ok2 || !ok3 {
		return store.Coords{}, false
	}
	return store.Coords{X: x, Y: y, Z: z}, true
}
