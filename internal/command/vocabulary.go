package command

import (
	"context"
	"fmt"

	"github.com/denecity/taas/internal/store"
)

// headingDelta maps a heading (0..3) to the (dx, dz) unit step a forward
// move makes: 0:+X, 1:+Z, 2:-X, 3:-Z.
func headingDelta(heading int64) (dx, dz int64) {
	switch heading % 4 {
	case 0:
		return 1, 0
	case 1:
		return 0, 1
	case 2:
		return -1, 0
	default:
		return 0, -1
	}
}

// applyMovement patches coords after a successful movement command,
// decrementing fuel by fuelCost if fuel is currently tracked. Mirrors
// Turtle._apply_movement.
func (a *Agent) applyMovement(ctx context.Context, dx, dy, dz int64, fuelCost int64) error {
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return err
	}

	patch := store.Patch{}
	if rec.Coords != nil {
		c := store.Coords{X: rec.Coords.X + dx, Y: rec.Coords.Y + dy, Z: rec.Coords.Z + dz}
		patch.Coords = &c
	}
	if rec.FuelLevel != nil && fuelCost != 0 {
		fuel := *rec.FuelLevel - fuelCost
		if fuel < 0 {
			fuel = 0
		}
		patch.FuelLevel = &fuel
	}
	return a.Store.Update(ctx, a.ID, patch)
}

// applyHeadingDelta patches heading by delta mod 4. Mirrors
// Turtle._apply_heading.
func (a *Agent) applyHeadingDelta(ctx context.Context, delta int64) error {
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	if rec.Heading == nil {
		return nil
	}
	h := ((*rec.Heading+delta)%4 + 4) % 4
	return a.Store.Update(ctx, a.ID, store.Patch{Heading: &h})
}

// -----------------------------------------------------------------------
// Movement
// -----------------------------------------------------------------------

func (a *Agent) Forward(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "forward", "turtle.forward()")
	if err != nil || !ok {
		return ok, err
	}
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return ok, err
	}
	heading := int64(0)
	if rec.Heading != nil {
		heading = *rec.Heading
	}
	dx, dz := headingDelta(heading)
	return ok, a.applyMovement(ctx, dx, 0, dz, 1)
}

func (a *Agent) Back(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "back", "turtle.back()")
	if err != nil || !ok {
		return ok, err
	}
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return ok, err
	}
	heading := int64(0)
	if rec.Heading != nil {
		heading = *rec.Heading
	}
	dx, dz := headingDelta(heading)
	return ok, a.applyMovement(ctx, -dx, 0, -dz, 1)
}

func (a *Agent) Up(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "up", "turtle.up()")
	if err != nil || !ok {
		return ok, err
	}
	return ok, a.applyMovement(ctx, 0, 1, 0, 1)
}

func (a *Agent) Down(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "down", "turtle.down()")
	if err != nil || !ok {
		return ok, err
	}
	return ok, a.applyMovement(ctx, 0, -1, 0, 1)
}

func (a *Agent) TurnLeft(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "turn_left", "turtle.turnLeft()")
	if err != nil || !ok {
		return ok, err
	}
	return ok, a.applyHeadingDelta(ctx, -1)
}

func (a *Agent) TurnRight(ctx context.Context) (bool, error) {
	ok, err := a.sendOK(ctx, "turn_right", "turtle.turnRight()")
	if err != nil || !ok {
		return ok, err
	}
	return ok, a.applyHeadingDelta(ctx, 1)
}

// -----------------------------------------------------------------------
// Digging & placing — no state delta beyond the audit trail.
// -----------------------------------------------------------------------

func (a *Agent) Dig(ctx context.Context) (bool, error)     { return a.sendOK(ctx, "dig", "turtle.dig()") }
func (a *Agent) DigUp(ctx context.Context) (bool, error)   { return a.sendOK(ctx, "dig_up", "turtle.digUp()") }
func (a *Agent) DigDown(ctx context.Context) (bool, error) { return a.sendOK(ctx, "dig_down", "turtle.digDown()") }

func (a *Agent) Place(ctx context.Context) (bool, error)   { return a.sendOK(ctx, "place", "turtle.place()") }
func (a *Agent) PlaceUp(ctx context.Context) (bool, error) { return a.sendOK(ctx, "place_up", "turtle.placeUp()") }
func (a *Agent) PlaceDown(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "place_down", "turtle.placeDown()")
}

func (a *Agent) Suck(ctx context.Context) (bool, error)     { return a.sendOK(ctx, "suck", "turtle.suck()") }
func (a *Agent) SuckUp(ctx context.Context) (bool, error)   { return a.sendOK(ctx, "suck_up", "turtle.suckUp()") }
func (a *Agent) SuckDown(ctx context.Context) (bool, error) { return a.sendOK(ctx, "suck_down", "turtle.suckDown()") }

func (a *Agent) Drop(ctx context.Context, count *int) (bool, error) {
	return a.sendOK(ctx, "drop", withCount("turtle.drop", count))
}
func (a *Agent) DropUp(ctx context.Context, count *int) (bool, error) {
	return a.sendOK(ctx, "drop_up", withCount("turtle.dropUp", count))
}
func (a *Agent) DropDown(ctx context.Context, count *int) (bool, error) {
	return a.sendOK(ctx, "drop_down", withCount("turtle.dropDown", count))
}

func withCount(fn string, count *int) string {
	if count == nil {
		return fn + "()"
	}
	return fmt.Sprintf("%s(%d)", fn, *count)
}

// -----------------------------------------------------------------------
// Inventory queries & manipulation
// -----------------------------------------------------------------------

func (a *Agent) Select(ctx context.Context, slot int) (bool, error) {
	return a.sendOK(ctx, "select", fmt.Sprintf("turtle.select(%d)", slot))
}

func (a *Agent) GetSelectedSlot(ctx context.Context) (any, error) {
	return a.eval(ctx, "get_selected_slot", "turtle.getSelectedSlot()")
}

func (a *Agent) GetItemCount(ctx context.Context, slot *int) (any, error) {
	return a.eval(ctx, "get_item_count", withCount("turtle.getItemCount", slot))
}

func (a *Agent) GetItemSpace(ctx context.Context, slot *int) (any, error) {
	return a.eval(ctx, "get_item_space", withCount("turtle.getItemSpace", slot))
}

func (a *Agent) Compare(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "compare", "turtle.compare()")
}
func (a *Agent) CompareUp(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "compare_up", "turtle.compareUp()")
}
func (a *Agent) CompareDown(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "compare_down", "turtle.compareDown()")
}
func (a *Agent) CompareTo(ctx context.Context, slot int) (bool, error) {
	return a.sendOK(ctx, "compare_to", fmt.Sprintf("turtle.compareTo(%d)", slot))
}

func (a *Agent) TransferTo(ctx context.Context, slot int, count *int) (bool, error) {
	line := fmt.Sprintf("turtle.transferTo(%d)", slot)
	if count != nil {
		line = fmt.Sprintf("turtle.transferTo(%d, %d)", slot, *count)
	}
	return a.sendOK(ctx, "transfer_to", line)
}

func (a *Agent) EquipLeft(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "equip_left", "turtle.equipLeft()")
}
func (a *Agent) EquipRight(ctx context.Context) (bool, error) {
	return a.sendOK(ctx, "equip_right", "turtle.equipRight()")
}

// -----------------------------------------------------------------------
// Fuel
// -----------------------------------------------------------------------

func (a *Agent) GetFuelLevel(ctx context.Context) (any, error) {
	return a.eval(ctx, "get_fuel_level", "turtle.getFuelLevel()")
}

func (a *Agent) GetFuelLimit(ctx context.Context) (any, error) {
	return a.eval(ctx, "get_fuel_limit", "turtle.getFuelLimit()")
}

// Refuel consumes fuel items from the selected slot and, on success,
// refreshes the locally tracked fuel_level from the firmware rather than
// guessing the delta — refuel amounts depend on item fuel value, which the
// orchestrator does not know locally.
func (a *Agent) Refuel(ctx context.Context, count *int) (bool, error) {
	ok, err := a.sendOK(ctx, "refuel", withCount("turtle.refuel", count))
	if err != nil || !ok {
		return ok, err
	}
	fuel, err := a.GetFuelLevel(ctx)
	if err != nil {
		return ok, nil
	}
	if f, isInt := toInt64(fuel); isInt {
		return ok, a.Store.Update(ctx, a.ID, store.Patch{FuelLevel: &f})
	}
	return ok, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// -----------------------------------------------------------------------
// Inspection, location, labeling — see normalize.go for shape conversion.
// -----------------------------------------------------------------------

func (a *Agent) Inspect(ctx context.Context) (InspectResult, error) {
	return a.inspect(ctx, "inspect", "turtle.inspect")
}
func (a *Agent) InspectUp(ctx context.Context) (InspectResult, error) {
	return a.inspect(ctx, "inspect_up", "turtle.inspectUp")
}
func (a *Agent) InspectDown(ctx context.Context) (InspectResult, error) {
	return a.inspect(ctx, "inspect_down", "turtle.inspectDown")
}

func (a *Agent) inspect(ctx context.Context, callName, fn string) (InspectResult, error) {
	line := fmt.Sprintf(`(function() local ok,data=%s(); return {ok=ok, data=data} end)()`, fn)
	raw, err := a.eval(ctx, callName, line)
	if err != nil {
		return InspectResult{}, err
	}
	return normalizeInspect(raw), nil
}

// GetLocation asks the firmware for its GPS position and, when the reply is
// an x, y, z triple, stores it as the agent's coords.
func (a *Agent) GetLocation(ctx context.Context) (any, error) {
	loc, err := a.eval(ctx, "get_location", "gps.locate()")
	if err != nil {
		return nil, err
	}
	if c, ok := parseCoordsTriple(loc); ok {
		if serr := a.Store.Update(ctx, a.ID, store.Patch{Coords: &c}); serr != nil {
			return loc, serr
		}
	}
	return loc, nil
}

// SetLabel assigns a human label, both on the firmware (best effort) and in
// the State Store (authoritative).
func (a *Agent) SetLabel(ctx context.Context, label string) (bool, error) {
	ok, err := a.sendOK(ctx, "set_label", fmt.Sprintf("os.setComputerLabel(%q)", label))
	if err != nil {
		return false, err
	}
	if serr := a.Store.SetLabel(ctx, a.ID, label); serr != nil {
		return ok, serr
	}
	return ok, nil
}

// GetInventoryDetails fetches all 16 slots' item detail from the firmware,
// normalizes them, and persists the normalized snapshot.
func (a *Agent) GetInventoryDetails(ctx context.Context) (map[int]store.InventorySlot, error) {
	line := `(function()
local out = {}
for i=1,16 do out[i] = turtle.getItemDetail(i) end
return out
end)()`
	raw, err := a.eval(ctx, "get_inventory_details", line)
	if err != nil {
		return nil, err
	}
	inv := normalizeInventory(raw)
	if serr := a.Store.Update(ctx, a.ID, store.Patch{Inventory: inv}); serr != nil {
		return inv, serr
	}
	return inv, nil
}
