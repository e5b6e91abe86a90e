package routine

import (
	"context"
	"fmt"
	"strings"

	"github.com/denecity/taas/internal/command"
)

// -----------------------------------------------------------------------
// execute_command — run a single named subroutine by name, e.g. "forward",
// "dig", "move_to_coordinate". Grounded on routine_execute_command.py's
// hasattr/getattr dynamic dispatch over the turtle wrapper: an unknown or
// missing name is logged and the routine returns cleanly rather than
// failing the assignment, and so is a subroutine that itself errors.
// -----------------------------------------------------------------------

type executeCommandRoutine struct{}

func (executeCommandRoutine) Name() string       { return "execute_command" }
func (executeCommandRoutine) HumanLabel() string { return "Execute Command" }
func (executeCommandRoutine) Description() string {
	return "Runs a single named subroutine (e.g. forward, turn_left, dig, move_to_coordinate)."
}
func (executeCommandRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"subroutine": "forward"}
}
func (executeCommandRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	name, _ := cfg["subroutine"].(string)
	if name == "" {
		a.Store.LogCall(ctx, logNote(a.ID, "execute_command: missing 'subroutine' parameter"))
		return nil
	}

	fn, ok := subroutineTable[name]
	if !ok {
		a.Store.LogCall(ctx, logNote(a.ID, fmt.Sprintf("execute_command: unknown subroutine %q", name)))
		return nil
	}

	result, err := fn(ctx, a, cfg)
	if err != nil {
		a.Store.LogCall(ctx, logNote(a.ID, fmt.Sprintf("execute_command: %q failed: %v", name, err)))
		return nil
	}
	a.Store.LogCall(ctx, logNote(a.ID, fmt.Sprintf("execute_command: %q executed successfully. Result: %v", name, result)))
	return nil
}

// subroutineTable is the dispatch table execute_command looks names up in:
// both bare Command Vocabulary primitives and the multi-step subroutines
// defined in subroutines.go.
var subroutineTable = map[string]func(ctx context.Context, a *command.Agent, cfg map[string]any) (any, error){
	"forward":    func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Forward(ctx) },
	"back":       func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Back(ctx) },
	"up":         func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Up(ctx) },
	"down":       func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Down(ctx) },
	"turn_left":  func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.TurnLeft(ctx) },
	"turn_right": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.TurnRight(ctx) },
	"dig":        func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Dig(ctx) },
	"dig_up":     func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.DigUp(ctx) },
	"dig_down":   func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.DigDown(ctx) },
	"dig_forward": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return digForward(ctx, a)
	},
	"place":         func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Place(ctx) },
	"place_up":      func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.PlaceUp(ctx) },
	"place_down":    func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.PlaceDown(ctx) },
	"suck":          func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Suck(ctx) },
	"suck_up":       func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.SuckUp(ctx) },
	"suck_down":     func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.SuckDown(ctx) },
	"drop":          func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Drop(ctx, nil) },
	"drop_up":       func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.DropUp(ctx, nil) },
	"drop_down":     func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.DropDown(ctx, nil) },
	"compare":       func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Compare(ctx) },
	"compare_up":    func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.CompareUp(ctx) },
	"compare_down":  func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.CompareDown(ctx) },
	"equip_left":    func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.EquipLeft(ctx) },
	"equip_right":   func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.EquipRight(ctx) },
	"get_fuel_level": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.GetFuelLevel(ctx)
	},
	"get_fuel_limit": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.GetFuelLimit(ctx)
	},
	"refuel": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) { return a.Refuel(ctx, nil) },
	"inspect": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.Inspect(ctx)
	},
	"inspect_up": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.InspectUp(ctx)
	},
	"inspect_down": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.InspectDown(ctx)
	},
	"get_location": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.GetLocation(ctx)
	},
	"get_inventory_details": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.GetInventoryDetails(ctx)
	},
	"get_selected_slot": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return a.GetSelectedSlot(ctx)
	},
	"dig_to_coordinate": func(ctx context.Context, a *command.Agent, cfg map[string]any) (any, error) {
		target, ok := configVec3(cfg)
		if !ok {
			return nil, fmt.Errorf("dig_to_coordinate: config.x/y/z are required")
		}
		return nil, digToCoordinate(ctx, a, target)
	},
	"move_to_coordinate": func(ctx context.Context, a *command.Agent, cfg map[string]any) (any, error) {
		target, ok := configVec3(cfg)
		if !ok {
			return nil, fmt.Errorf("move_to_coordinate: config.x/y/z are required")
		}
		return nil, moveToCoordinate(ctx, a, target)
	},
	"refuel_if_possible": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return nil, refuelIfPossible(ctx, a)
	},
	"count_empty_slots": func(ctx context.Context, a *command.Agent, _ map[string]any) (any, error) {
		return countEmptySlots(ctx, a)
	},
}

// -----------------------------------------------------------------------
// set_label — rename the agent.
// -----------------------------------------------------------------------

type setLabelRoutine struct{}

func (setLabelRoutine) Name() string        { return "set_label" }
func (setLabelRoutine) HumanLabel() string  { return "Set Label" }
func (setLabelRoutine) Description() string { return "Sets the agent's human-readable label." }
func (setLabelRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"label": "turtle-01"}
}
func (setLabelRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	label, _ := cfg["label"].(string)
	if label == "" {
		return fmt.Errorf("set_label: config.label is required")
	}
	_, err := a.SetLabel(ctx, label)
	return err
}

// -----------------------------------------------------------------------
// dig_to_coordinate
// -----------------------------------------------------------------------

type digToCoordinateRoutine struct{}

func (digToCoordinateRoutine) Name() string       { return "dig_to_coordinate" }
func (digToCoordinateRoutine) HumanLabel() string { return "Dig To Coordinate" }
func (digToCoordinateRoutine) Description() string {
	return "Force-digs a straight-line path (X, then Z, then Y) to the target coordinate."
}
func (digToCoordinateRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"x": 0, "y": 0, "z": 0}
}
func (digToCoordinateRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	target, ok := configVec3(cfg)
	if !ok {
		return fmt.Errorf("dig_to_coordinate: config.x/y/z are required")
	}
	return digToCoordinate(ctx, a, target)
}

// -----------------------------------------------------------------------
// move_to_coordinate
// -----------------------------------------------------------------------

type moveToCoordinateRoutine struct{}

func (moveToCoordinateRoutine) Name() string       { return "move_to_coordinate" }
func (moveToCoordinateRoutine) HumanLabel() string { return "Move To Coordinate" }
func (moveToCoordinateRoutine) Description() string {
	return "Travels to the target coordinate via a y=150 safe corridor, bypassing obstacles."
}
func (moveToCoordinateRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"x": 0, "y": 0, "z": 0}
}
func (moveToCoordinateRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	target, ok := configVec3(cfg)
	if !ok {
		return fmt.Errorf("move_to_coordinate: config.x/y/z are required")
	}
	return moveToCoordinate(ctx, a, target)
}

// -----------------------------------------------------------------------
// mine_full_chunk — mine every ore vein reachable from the current
// position within one 16x16 chunk column: an 8x15 zig-zag on each layer,
// descending by one block between layers from start_y down to stop_y.
// Grounded on routine_mine_full_chunk.py.
// -----------------------------------------------------------------------

type mineFullChunkRoutine struct{}

func (mineFullChunkRoutine) Name() string       { return "mine_full_chunk" }
func (mineFullChunkRoutine) HumanLabel() string { return "Mine Full Chunk" }
func (mineFullChunkRoutine) Description() string {
	return "Zig-zags an 8x15 pattern across the current chunk on every layer from start_y down to stop_y."
}
func (mineFullChunkRoutine) ConfigTemplate() map[string]any {
	return map[string]any{
		"start_y": 50, "stop_y": 20, "empty_slots_threshold": 4,
		"chest_slot": 1, "dump_strategy": "dump_to_left_chest",
	}
}
func (mineFullChunkRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	startY := int64(configInt(cfg, "start_y", 50))
	stopY := int64(configInt(cfg, "stop_y", 20))
	threshold := configInt(cfg, "empty_slots_threshold", 4)

	pos, err := currentCoords(ctx, a)
	if err != nil {
		return err
	}
	cx, cz := chunkOrigin(pos.X, pos.Z)
	seX, seZ := cx+16-1, cz+16-1

	if err := digToCoordinate(ctx, a, vec3{X: seX, Y: startY, Z: seZ}); err != nil {
		return err
	}
	if err := faceDirection(ctx, a, 3); err != nil { // face north to mine consistently
		return err
	}

	for height := startY; height >= stopY; height-- {
		for width := 0; width < 8; width++ {
			for depth := 0; depth < 15; depth++ {
				if _, err := digForward(ctx, a); err != nil {
					return err
				}
			}
			if _, err := a.TurnLeft(ctx); err != nil {
				return err
			}
			if _, err := digForward(ctx, a); err != nil {
				return err
			}
			if _, err := a.TurnLeft(ctx); err != nil {
				return err
			}

			for depth := 0; depth < 15; depth++ {
				if _, err := digForward(ctx, a); err != nil {
					return err
				}
			}
			if _, err := a.TurnRight(ctx); err != nil {
				return err
			}
			if _, err := digForward(ctx, a); err != nil {
				return err
			}
			if _, err := a.TurnRight(ctx); err != nil {
				return err
			}

			empty, err := countEmptySlots(ctx, a)
			if err != nil {
				return err
			}
			if empty < threshold {
				if err := refuelIfPossible(ctx, a); err != nil {
					return err
				}
				chestSlot := configInt(cfg, "chest_slot", 1)
				if _, err := a.Select(ctx, chestSlot); err != nil {
					return err
				}
				if err := maybeDump(ctx, a, cfg, threshold); err != nil {
					return err
				}
			}
		}

		if _, err := a.TurnRight(ctx); err != nil {
			return err
		}
		for i := 0; i < 16; i++ {
			if _, err := digForward(ctx, a); err != nil {
				return err
			}
		}
		if _, err := a.TurnLeft(ctx); err != nil {
			return err
		}
		if _, err := a.DigDown(ctx); err != nil {
			return err
		}
		if _, err := a.Down(ctx); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// auto_chunk_miner — composite outline: sweeps a rectangular grid of
// columns within the chunk, mining any vein found at each stop and
// refueling/dumping between columns.
// -----------------------------------------------------------------------

type autoChunkMinerRoutine struct{}

func (autoChunkMinerRoutine) Name() string       { return "auto_chunk_miner" }
func (autoChunkMinerRoutine) HumanLabel() string { return "Auto Chunk Miner" }
func (autoChunkMinerRoutine) Description() string {
	return "Sweeps a rectangular grid of strips across the chunk, mining any vein encountered."
}
func (autoChunkMinerRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"width": 16, "length": 16, "max_actions": 2000, "chest_slot": 1}
}
func (autoChunkMinerRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	width := configInt(cfg, "width", 16)
	length := configInt(cfg, "length", 16)

	start, err := currentCoords(ctx, a)
	if err != nil {
		return err
	}

	for strip := 0; strip < width; strip++ {
		z := start.Z + int64(length)
		if strip%2 == 1 {
			z = start.Z
		}
		target := vec3{X: start.X + int64(strip), Y: start.Y, Z: z}
		if err := digToCoordinate(ctx, a, target); err != nil {
			return err
		}
		if err := mineOreVein(ctx, a, cfg, nil); err != nil {
			return err
		}
		if err := refuelIfPossible(ctx, a); err != nil {
			return err
		}
		if strip%4 == 3 {
			if err := dumpToLeftChest(ctx, a, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// smart_mine_full is defined in smart_mine_full.go: it tiles a caller-given
// rectangle into dig points classified by their position (inside/edge/
// corner) and drills a chute straight through the rectangle at each one.

// -----------------------------------------------------------------------
// simple_walk — recovered from original_source/routines/routine_simple_walk.py.
// Not in spec.md's distillation, but useful as a minimal smoke-test routine
// and registry example.
// -----------------------------------------------------------------------

type simpleWalkRoutine struct{}

func (simpleWalkRoutine) Name() string        { return "simple_walk" }
func (simpleWalkRoutine) HumanLabel() string  { return "Simple Walk" }
func (simpleWalkRoutine) Description() string { return "Walks forward config.steps times." }
func (simpleWalkRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"steps": 10}
}
func (simpleWalkRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	steps := configInt(cfg, "steps", 10)
	for i := 0; i < steps; i++ {
		if _, err := a.Forward(ctx); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// avoid_gold_dig_diamond — recovered from original_source/routines/
// routine_avoid_gold_dig_diamond.py: a vein-selective variant of
// mine_ore_vein that skips gold ore and digs everything else ore-like.
// -----------------------------------------------------------------------

type avoidGoldDigDiamondRoutine struct{}

func (avoidGoldDigDiamondRoutine) Name() string       { return "avoid_gold_dig_diamond" }
func (avoidGoldDigDiamondRoutine) HumanLabel() string { return "Avoid Gold, Dig Diamond" }
func (avoidGoldDigDiamondRoutine) Description() string {
	return "Mines the current ore vein, skipping any block whose name contains gold."
}
func (avoidGoldDigDiamondRoutine) ConfigTemplate() map[string]any {
	return map[string]any{"max_actions": 2000}
}
func (avoidGoldDigDiamondRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	filter := func(name string) bool {
		return defaultOreFilter(name) && !strings.Contains(strings.ToLower(name), "gold")
	}
	return mineOreVein(ctx, a, cfg, filter)
}

