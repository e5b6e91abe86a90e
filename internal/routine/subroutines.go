package routine

import (
	"context"
	"fmt"
	"strings"

	"github.com/denecity/taas/internal/command"
	"github.com/denecity/taas/internal/store"
)

// forceDigForward retries forward movement up to 20 times, digging whatever
// blocks the way between attempts. Grounded on subroutines.py's
// force_dig_forward.
func forceDigForward(ctx context.Context, a *command.Agent) (bool, error) {
	for attempt := 0; attempt < 20; attempt++ {
		ok, err := a.Forward(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if _, err := a.Dig(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// digForward dig+forwards once, matching the single-attempt turtle.dig_forward()
// convenience used by the chunk-mining routines — distinct from
// forceDigForward's 20-attempt retry loop, which is reserved for traversal
// that must not give up on the first obstruction.
func digForward(ctx context.Context, a *command.Agent) (bool, error) {
	if _, err := a.Dig(ctx); err != nil {
		return false, err
	}
	return a.Forward(ctx)
}

// countEmptySlots reports how many of the 16 inventory slots hold nothing.
func countEmptySlots(ctx context.Context, a *command.Agent) (int, error) {
	inv, err := a.GetInventoryDetails(ctx)
	if err != nil {
		return 0, err
	}
	return countEmptySlotsFromInventory(inv), nil
}

func countEmptySlotsFromInventory(inv map[int]store.InventorySlot) int {
	empty := 0
	for slot := 1; slot <= 16; slot++ {
		item, ok := inv[slot]
		if !ok || item.Name == "" {
			empty++
		}
	}
	return empty
}

// chunkOrigin returns the (min_x, min_z) corner of the 16x16 chunk containing
// (x, z), using floor division so it is correct for negative coordinates too.
func chunkOrigin(x, z int64) (int64, int64) {
	return floorDiv16(x), floorDiv16(z)
}

func floorDiv16(n int64) int64 {
	q := n / 16
	if n%16 != 0 && (n < 0) != (16 < 0) {
		q--
	}
	return q * 16
}

// maybeDump dumps the inventory to the configured strategy's destination
// once it is running low on empty slots. Only dump_to_left_chest is a real
// destination in this fleet — anything else is logged and skipped, since
// there is no ender-chest primitive in the Command Vocabulary.
func maybeDump(ctx context.Context, a *command.Agent, cfg map[string]any, threshold int) error {
	empty, err := countEmptySlots(ctx, a)
	if err != nil {
		return err
	}
	if empty > threshold {
		return nil
	}

	strategy, _ := cfg["dump_strategy"].(string)
	if strategy == "" {
		strategy = "dump_to_left_chest"
	}
	if strategy != "dump_to_left_chest" {
		a.Store.LogCall(ctx, logNote(a.ID, fmt.Sprintf("maybe_dump: unknown dump strategy %q", strategy)))
		return nil
	}
	return dumpToLeftChest(ctx, a, cfg)
}

// currentCoords reads the agent's current position from the State Store.
func currentCoords(ctx context.Context, a *command.Agent) (vec3, error) {
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return vec3{}, err
	}
	if rec.Coords == nil {
		return vec3{}, fmt.Errorf("routine: agent %d has no known position", a.ID)
	}
	return vec3{X: rec.Coords.X, Y: rec.Coords.Y, Z: rec.Coords.Z}, nil
}

func currentHeading(ctx context.Context, a *command.Agent) (int, error) {
	rec, err := a.Store.Get(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	if rec.Heading == nil {
		return 0, nil
	}
	return int(*rec.Heading), nil
}

// faceDirection rotates the agent (via the fewest turns) to face the given
// heading, reading/writing the canonical heading through the Store on every
// turn (command.Agent.TurnLeft/TurnRight already do this).
func faceDirection(ctx context.Context, a *command.Agent, target int) error {
	heading, err := currentHeading(ctx, a)
	if err != nil {
		return err
	}
	dist := faceDistance(heading, target)
	switch dist {
	case 0:
		return nil
	case 1:
		_, err = a.TurnRight(ctx)
	case 2:
		if _, err = a.TurnRight(ctx); err == nil {
			_, err = a.TurnRight(ctx)
		}
	case 3:
		_, err = a.TurnLeft(ctx)
	}
	return err
}

// -----------------------------------------------------------------------
// dig_to_coordinate — straight-line X then Z then Y traversal, force-
// digging through obstacles, stopping an axis (not the whole routine) the
// first time that axis is blocked.
// -----------------------------------------------------------------------

func digToCoordinate(ctx context.Context, a *command.Agent, target vec3) error {
	cur, err := currentCoords(ctx, a)
	if err != nil {
		return err
	}

	for cur.X != target.X {
		heading := 0
		if target.X < cur.X {
			heading = 2
		}
		if err := faceDirection(ctx, a, heading); err != nil {
			return err
		}
		ok, err := forceDigForward(ctx, a)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}

	for cur.Z != target.Z {
		heading := 1
		if target.Z < cur.Z {
			heading = 3
		}
		if err := faceDirection(ctx, a, heading); err != nil {
			return err
		}
		ok, err := forceDigForward(ctx, a)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}

	for cur.Y != target.Y {
		var ok bool
		if target.Y > cur.Y {
			if _, err := a.DigUp(ctx); err != nil {
				return err
			}
			ok, err = a.Up(ctx)
			if err != nil {
				return err
			}
		} else {
			if _, err := a.DigDown(ctx); err != nil {
				return err
			}
			ok, err = a.Down(ctx)
			if err != nil {
				return err
			}
		}
		if !ok {
			break
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// move_to_coordinate — obstacle-aware travel via a y=150 safe corridor.
// -----------------------------------------------------------------------

func moveToCoordinate(ctx context.Context, a *command.Agent, target vec3) error {
	cur, err := currentCoords(ctx, a)
	if err != nil {
		return err
	}
	threshold := maxInt64(500, 4*l1(cur, target))
	var steps int64

	stepForwardChecked := func() (bool, error) {
		if _, err := a.Dig(ctx); err != nil {
			return false, err
		}
		if _, err := a.DigUp(ctx); err != nil {
			return false, err
		}
		ok, err := a.Forward(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			steps++
			return true, nil
		}
		// Vertical bypass: up, forward, down.
		if upOK, err := a.Up(ctx); err == nil && upOK {
			steps++
			if fwdOK, err := a.Forward(ctx); err == nil && fwdOK {
				steps++
				if _, err := a.Down(ctx); err != nil {
					return false, err
				}
				steps++
				return true, nil
			}
			_, _ = a.Down(ctx)
			steps++
		}
		return false, nil
	}

	// Stage 1: rise into the safe corridor.
	for cur.Y < 150 && steps < threshold {
		if _, err := a.DigUp(ctx); err != nil {
			return err
		}
		ok, err := a.Up(ctx)
		if err != nil {
			return err
		}
		steps++
		if !ok {
			break
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}

	// Stage 2: traverse X.
	for cur.X != target.X && steps < threshold {
		heading := 0
		if target.X < cur.X {
			heading = 2
		}
		if err := faceDirection(ctx, a, heading); err != nil {
			return err
		}
		if _, err := stepForwardChecked(); err != nil {
			return err
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}

	// Stage 3: traverse Z.
	for cur.Z != target.Z && steps < threshold {
		heading := 1
		if target.Z < cur.Z {
			heading = 3
		}
		if err := faceDirection(ctx, a, heading); err != nil {
			return err
		}
		if _, err := stepForwardChecked(); err != nil {
			return err
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}

	// Stage 4: settle onto the exact target altitude.
	for cur.Y != target.Y && steps < threshold {
		var ok bool
		if target.Y > cur.Y {
			if _, err := a.DigUp(ctx); err != nil {
				return err
			}
			ok, err = a.Up(ctx)
		} else {
			if _, err := a.DigDown(ctx); err != nil {
				return err
			}
			ok, err = a.Down(ctx)
		}
		if err != nil {
			return err
		}
		steps++
		if !ok {
			break
		}
		cur, err = currentCoords(ctx, a)
		if err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// mine_ore_vein — BFS flood-fill vein mining over a locally tracked,
// relative-frame pose (not the agent's global position), exactly as
// subroutines.py does: the vein graph only ever needs relative adjacency.
// -----------------------------------------------------------------------

type oreFilter func(name string) bool

func defaultOreFilter(name string) bool {
	return strings.Contains(strings.ToLower(name), "ore")
}

func mineOreVein(ctx context.Context, a *command.Agent, cfg map[string]any, isOre oreFilter) error {
	if isOre == nil {
		isOre = defaultOreFilter
	}
	maxActions := configInt(cfg, "max_actions", 2000)

	pos := vec3{}
	dirIdx := 0
	mined := map[vec3]bool{pos: true}
	frontier := map[vec3]bool{}
	actions := 0

	turnRightLocal := func() error {
		if _, err := a.TurnRight(ctx); err != nil {
			return err
		}
		dirIdx = (dirIdx + 1) % 4
		return nil
	}
	turnLeftLocal := func() error {
		if _, err := a.TurnLeft(ctx); err != nil {
			return err
		}
		dirIdx = (dirIdx - 1 + 4) % 4
		return nil
	}
	faceDirLocal := func(target int) error {
		switch faceDistance(dirIdx, target) {
		case 1:
			return turnRightLocal()
		case 2:
			if err := turnRightLocal(); err != nil {
				return err
			}
			return turnRightLocal()
		case 3:
			return turnLeftLocal()
		default:
			return nil
		}
	}
	stepForwardLocal := func() (bool, error) {
		ok, err := forceDigForward(ctx, a)
		if err != nil {
			return false, err
		}
		if ok {
			pos = pos.add(dirVecs[dirIdx])
		}
		return ok, nil
	}
	stepUpLocal := func() (bool, error) {
		if _, err := a.DigUp(ctx); err != nil {
			return false, err
		}
		ok, err := a.Up(ctx)
		if err == nil && ok {
			pos.Y++
		}
		return ok, err
	}
	stepDownLocal := func() (bool, error) {
		if _, err := a.DigDown(ctx); err != nil {
			return false, err
		}
		ok, err := a.Down(ctx)
		if err == nil && ok {
			pos.Y--
		}
		return ok, err
	}
	refreshFrontierHere := func() error {
		start := dirIdx
		for i := 0; i < 4; i++ {
			res, err := a.Inspect(ctx)
			if err != nil {
				return err
			}
			target := pos.add(dirVecs[dirIdx])
			if res.Present && isOre(res.Name) && !mined[target] {
				frontier[target] = true
			}
			if err := turnRightLocal(); err != nil {
				return err
			}
		}
		for dirIdx != start {
			if err := turnLeftLocal(); err != nil {
				return err
			}
		}
		resUp, err := a.InspectUp(ctx)
		if err != nil {
			return err
		}
		up := pos.add(vec3{Y: 1})
		if resUp.Present && isOre(resUp.Name) && !mined[up] {
			frontier[up] = true
		}
		resDown, err := a.InspectDown(ctx)
		if err != nil {
			return err
		}
		down := pos.add(vec3{Y: -1})
		if resDown.Present && isOre(resDown.Name) && !mined[down] {
			frontier[down] = true
		}
		return nil
	}

	// neighbor describes one of target's six 6-connected neighbors that is
	// already mined, reachable by a single move from it.
	type neighbor struct {
		adj    vec3
		faceID int // -1 for vertical
	}
	adjacentMinedNeighbors := func(target vec3) []neighbor {
		deltas := []struct {
			d       vec3
			faceID  int
		}{
			{dirVecs[0], 0}, {dirVecs[1], 1}, {dirVecs[2], 2}, {dirVecs[3], 3},
			{vec3{Y: 1}, -1}, {vec3{Y: -1}, -1},
		}
		var out []neighbor
		for _, dd := range deltas {
			adj := target.sub(dd.d)
			if mined[adj] {
				out = append(out, neighbor{adj: adj, faceID: dd.faceID})
			}
		}
		return out
	}
	bfsPath := func(start, goal vec3) []vec3 {
		if start == goal {
			return []vec3{start}
		}
		queue := []vec3{start}
		prev := map[vec3]vec3{start: start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, d := range []vec3{dirVecs[0], dirVecs[1], dirVecs[2], dirVecs[3], {Y: 1}, {Y: -1}} {
				next := cur.add(d)
				if !mined[next] {
					continue
				}
				if _, seen := prev[next]; seen {
					continue
				}
				prev[next] = cur
				if next == goal {
					path := []vec3{goal}
					for path[len(path)-1] != start {
						path = append(path, prev[path[len(path)-1]])
					}
					reverse(path)
					return path
				}
				queue = append(queue, next)
			}
		}
		return nil
	}

	if err := refreshFrontierHere(); err != nil {
		return err
	}

	for len(frontier) > 0 && actions < maxActions {
		var best []vec3
		var bestTarget vec3
		var bestFaceID int
		for target := range frontier {
			for _, nb := range adjacentMinedNeighbors(target) {
				path := bfsPath(pos, nb.adj)
				if path != nil && (best == nil || len(path) < len(best)) {
					best = path
					bestTarget = target
					bestFaceID = nb.faceID
				}
			}
		}
		if best == nil {
			a.Store.LogCall(ctx, logNote(a.ID, "mine_ore_vein: no reachable ore frontier"))
			break
		}

		for i := 1; i < len(best) && actions < maxActions; i++ {
			delta := best[i].sub(best[i-1])
			var err error
			switch {
			case delta.Y == 1:
				_, err = stepUpLocal()
			case delta.Y == -1:
				_, err = stepDownLocal()
			default:
				idx, ok := headingFromDelta(delta.X, delta.Z)
				if !ok {
					continue
				}
				if err = faceDirLocal(int(idx)); err == nil {
					_, err = stepForwardLocal()
				}
			}
			if err != nil {
				return err
			}
			actions++
		}
		if actions >= maxActions {
			break
		}

		if bestFaceID >= 0 {
			if err := faceDirLocal(bestFaceID); err != nil {
				return err
			}
			if _, err := a.Dig(ctx); err != nil {
				return err
			}
			if _, err := stepForwardLocal(); err != nil {
				return err
			}
		} else if bestTarget.Y > pos.Y {
			if _, err := stepUpLocal(); err != nil {
				return err
			}
		} else {
			if _, err := stepDownLocal(); err != nil {
				return err
			}
		}
		mined[pos] = true
		delete(frontier, bestTarget)
		actions++

		if err := refreshFrontierHere(); err != nil {
			return err
		}
	}

	if pos != (vec3{}) {
		path := bfsPath(pos, vec3{})
		for i := 1; i < len(path); i++ {
			delta := path[i].sub(path[i-1])
			var err error
			switch {
			case delta.Y == 1:
				_, err = stepUpLocal()
			case delta.Y == -1:
				_, err = stepDownLocal()
			default:
				idx, ok := headingFromDelta(delta.X, delta.Z)
				if ok {
					if err = faceDirLocal(int(idx)); err == nil {
						_, err = stepForwardLocal()
					}
				}
			}
			if err != nil {
				return err
			}
		}
	}
	return faceDirLocal(0)
}

func reverse(v []vec3) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
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

func logNote(turtleID int64, msg string) store.CallAuditEntry {
	ok := true
	return store.CallAuditEntry{TurtleID: turtleID, CallName: "note", Ok: &ok, Result: msg}
}

// -----------------------------------------------------------------------
// dump_to_left_chest — place a chest to the left and empty every slot but
// the one the chest itself came from. The unconditional dig/up/dig/down
// sequence after place() (even on placement failure) matches subroutines.py
// literally; only after those four calls does the code check whether
// placement actually succeeded.
// -----------------------------------------------------------------------

func dumpToLeftChest(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	chestSlot := configInt(cfg, "chest_slot", 1)
	if chestSlot < 1 || chestSlot > 16 {
		chestSlot = 1
	}

	if _, err := a.Select(ctx, chestSlot); err != nil {
		return err
	}
	count, err := a.GetItemCount(ctx, &chestSlot)
	if err != nil {
		return err
	}
	if n, ok := toInt64(count); ok && n <= 0 {
		a.Store.LogCall(ctx, logNote(a.ID, "dump_to_left_chest: no chest item in configured slot"))
		return nil
	}

	if _, err := a.TurnLeft(ctx); err != nil {
		return err
	}
	inspectRes, err := a.Inspect(ctx)
	if err != nil {
		return err
	}
	if inspectRes.Present {
		if _, err := a.Dig(ctx); err != nil {
			return err
		}
	}
	placed, err := a.Place(ctx)
	if err != nil {
		return err
	}

	if _, err := a.DigUp(ctx); err != nil {
		return err
	}
	if _, err := a.Up(ctx); err != nil {
		return err
	}
	if _, err := a.Dig(ctx); err != nil {
		return err
	}
	if _, err := a.Down(ctx); err != nil {
		return err
	}

	if !placed {
		_, err := a.TurnRight(ctx)
		return err
	}

	for slot := 1; slot <= 16; slot++ {
		if slot == chestSlot {
			continue
		}
		if _, err := a.Select(ctx, slot); err != nil {
			return err
		}
		if _, err := a.Drop(ctx, nil); err != nil {
			return err
		}
	}

	_, err = a.TurnRight(ctx)
	return err
}

// -----------------------------------------------------------------------
// refuel_if_possible — corrected, per spec.md §9: loop while
// fuel + headroom < limit, refuel from one coal slot at a time, stop when
// no coal is found. (original_source's single per-item pass did not
// actually loop back after a successful refuel; spec.md mandates the
// while-loop reading given here.)
// -----------------------------------------------------------------------

const refuelTargetHeadroom = 5000

func refuelIfPossible(ctx context.Context, a *command.Agent) error {
	limit, err := a.GetFuelLimit(ctx)
	if err != nil {
		return err
	}
	limitVal, ok := toInt64(limit)
	if !ok {
		return nil
	}

	for {
		if _, err := a.GetInventoryDetails(ctx); err != nil {
			return err
		}
		rec, err := a.Store.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		fuel := int64(0)
		if rec.FuelLevel != nil {
			fuel = *rec.FuelLevel
		}
		if fuel+refuelTargetHeadroom >= limitVal {
			a.Store.LogCall(ctx, logNote(a.ID, "refuel_if_possible: fuel headroom sufficient"))
			return nil
		}

		coalSlot := findCoalSlot(rec.Inventory)
		if coalSlot == 0 {
			a.Store.LogCall(ctx, logNote(a.ID, "refuel_if_possible: no coal found, could be losing fuel over time"))
			return nil
		}

		if _, err := a.Select(ctx, coalSlot); err != nil {
			return err
		}
		refueled, err := a.Refuel(ctx, nil)
		if err != nil {
			return err
		}
		if !refueled {
			a.Store.LogCall(ctx, logNote(a.ID, "refuel_if_possible: refuel from coal slot failed"))
			return nil
		}
	}
}

func findCoalSlot(inv map[int]store.InventorySlot) int {
	for slot, item := range inv {
		if item.Name == "minecraft:coal" {
			return slot
		}
	}
	return 0
}
