package routine

import (
	"context"
	"fmt"

	"github.com/denecity/taas/internal/command"
)

// -----------------------------------------------------------------------
// smart_mine_full — tiles a caller-given rectangle into "dig points" spaced
// along diagonal offsets, classifies each point as inside/edge/corner
// relative to the rectangle, and drills a straight chute through the full
// Y range at every point, widening the cut at each step with a cross, T, or
// L pattern depending on the point's classification. Grounded on
// routine_smart_mine_full.py's dig_calculation/dig_in_cross_pattern/
// dig_chute.
// -----------------------------------------------------------------------

type smartMineFullRoutine struct{}

func (smartMineFullRoutine) Name() string       { return "smart_mine_full" }
func (smartMineFullRoutine) HumanLabel() string { return "Smart Full Miner" }
func (smartMineFullRoutine) Description() string {
	return "Tiles a rectangle between two corners into dig points and chutes straight through the Y range at each one."
}
func (smartMineFullRoutine) ConfigTemplate() map[string]any {
	return map[string]any{
		"corner_1": []int64{296, 9}, "corner_2": []int64{315, -11},
		"start_y": 63, "stop_y": -20, "empty_slots_threshold": 4,
		"chest_slot": 1, "dump_strategy": "dump_to_left_chest",
	}
}

func (smartMineFullRoutine) Run(ctx context.Context, a *command.Agent, cfg map[string]any) error {
	corner1X, corner1Z, ok := configPair(cfg, "corner_1", 0, 0)
	if !ok {
		corner1X, corner1Z = 0, 0
	}
	corner2X, corner2Z, ok := configPair(cfg, "corner_2", 15, 15)
	if !ok {
		corner2X, corner2Z = 15, 15
	}
	startY := int64(configInt(cfg, "start_y", 50))
	stopY := int64(configInt(cfg, "stop_y", 20))
	threshold := configInt(cfg, "empty_slots_threshold", 4)

	bottomLeftX, bottomLeftZ := minInt64(corner1X, corner2X), minInt64(corner1Z, corner2Z)
	topRightX, topRightZ := maxInt64(corner1X, corner2X), maxInt64(corner1Z, corner2Z)
	width := topRightX - bottomLeftX + 1
	height := topRightZ - bottomLeftZ + 1

	points, classes, edgeDirs, cornerDirs := digCalculation(bottomLeftX, bottomLeftZ, width, height)

	if err := digToCoordinate(ctx, a, vec3{X: bottomLeftX, Y: startY, Z: bottomLeftZ}); err != nil {
		return err
	}

	topOrBottom := 1
	for i := range points {
		x, z := points[i][0], points[i][1]
		if topOrBottom == 1 {
			if err := digToCoordinate(ctx, a, vec3{X: x, Y: startY, Z: z}); err != nil {
				return err
			}
		} else {
			if err := digToCoordinate(ctx, a, vec3{X: x, Y: stopY, Z: z}); err != nil {
				return err
			}
		}
		if err := digChute(ctx, a, topOrBottom, startY, stopY, classes[i], edgeDirs[i], cornerDirs[i], cfg, threshold); err != nil {
			return err
		}
		if topOrBottom == 1 {
			topOrBottom = 2
		} else {
			topOrBottom = 1
		}
	}
	return nil
}

// digCalculation tiles a width x height rectangle anchored at (startX,
// startZ) into dig points, generated along diagonal offsets [-i, 3i]
// expanded by [start+2k, start-k], clamped into the rectangle (moving any
// point that strayed exactly one step outside back in), and classified by
// position: 1 moved, 2 corner, 3 edge, 4 inside. edgeDirection and
// cornerDirection disambiguate which edge/corner (0 when not applicable).
func digCalculation(startX, startZ, width, height int64) (points [][2]int64, pointClass, edgeDirection, cornerDirection []int) {
	n := height + width
	if n <= 0 {
		return nil, nil, nil, nil
	}

	var startingPoints [][2]int64
	for i := int64(0); i < n; i++ {
		startingPoints = append(startingPoints, [2]int64{-i, 3 * i})
	}

	var raw [][2]int64
	for _, start := range startingPoints {
		for i := int64(0); i < n; i++ {
			raw = append(raw, [2]int64{start[0] + 2*i, start[1] - i})
		}
	}

	var valid [][2]int64
	for _, p := range raw {
		if p[0] >= -1 && p[0] <= width && p[1] >= -1 && p[1] <= height {
			valid = append(valid, p)
		}
	}

	for _, p := range valid {
		x, z := p[0], p[1]
		switch {
		case x < 0:
			points = append(points, [2]int64{x + 1, z})
			pointClass = append(pointClass, 1)
			edgeDirection = append(edgeDirection, 4)
			cornerDirection = append(cornerDirection, 0)
		case z < 0:
			points = append(points, [2]int64{x, z + 1})
			pointClass = append(pointClass, 1)
			edgeDirection = append(edgeDirection, 3)
			cornerDirection = append(cornerDirection, 0)
		case x > width-1:
			points = append(points, [2]int64{x - 1, z})
			pointClass = append(pointClass, 1)
			edgeDirection = append(edgeDirection, 2)
			cornerDirection = append(cornerDirection, 0)
		case z > height-1:
			points = append(points, [2]int64{x, z - 1})
			pointClass = append(pointClass, 1)
			edgeDirection = append(edgeDirection, 1)
			cornerDirection = append(cornerDirection, 0)
		default:
			points = append(points, [2]int64{x, z})
			onXEdge := x == 0 || x == width-1
			onZEdge := z == 0 || z == height-1
			switch {
			case onXEdge && onZEdge:
				pointClass = append(pointClass, 2)
				edgeDirection = append(edgeDirection, 0)
				switch {
				case x == 0 && z == 0:
					cornerDirection = append(cornerDirection, 1) // bottom-left
				case x == 0 && z == height-1:
					cornerDirection = append(cornerDirection, 2) // top-left
				case x == width-1 && z == height-1:
					cornerDirection = append(cornerDirection, 3) // top-right
				default:
					cornerDirection = append(cornerDirection, 4) // bottom-right
				}
			case onXEdge:
				pointClass = append(pointClass, 3)
				if x == 0 {
					edgeDirection = append(edgeDirection, 4) // left edge
				} else {
					edgeDirection = append(edgeDirection, 2) // right edge
				}
				cornerDirection = append(cornerDirection, 0)
			case onZEdge:
				pointClass = append(pointClass, 3)
				if z == 0 {
					edgeDirection = append(edgeDirection, 3) // bottom edge
				} else {
					edgeDirection = append(edgeDirection, 1) // top edge
				}
				cornerDirection = append(cornerDirection, 0)
			default:
				pointClass = append(pointClass, 4)
				edgeDirection = append(edgeDirection, 0)
				cornerDirection = append(cornerDirection, 0)
			}
		}
	}

	for i := range points {
		points[i][0] += startX
		points[i][1] += startZ
	}
	return points, pointClass, edgeDirection, cornerDirection
}

// digInCrossPattern widens the current dig point with a shape dependent on
// its classification. Every branch's turns net to a multiple of 4 quarter
// turns (or cancel pairwise), so the agent always ends facing the heading
// it started the call with.
func digInCrossPattern(ctx context.Context, a *command.Agent, class, edgeDir, cornerDir int) error {
	switch class {
	case 1: // moved
		return nil
	case 4: // inside: full cross
		return turnDigSequence(ctx, a, "d", "l", "d", "l", "d", "l", "d", "l")
	case 3: // edge: T pattern, direction-dependent (1 top, 2 right, 3 bottom, 4 left)
		switch edgeDir {
		case 2: // right edge
			return turnDigSequence(ctx, a, "r", "d", "r", "d", "r", "d", "r")
		case 1: // top edge
			return turnDigSequence(ctx, a, "d", "l", "d", "l", "d", "l", "l")
		case 4: // left edge
			return turnDigSequence(ctx, a, "l", "d", "r", "d", "r", "d", "l")
		case 3: // bottom edge
			return turnDigSequence(ctx, a, "d", "r", "d", "r", "d", "r", "r")
		}
	case 2: // corner: L pattern, direction-dependent (1 bottom-left, 2 top-left, 3 top-right, 4 bottom-right)
		switch cornerDir {
		case 1: // bottom-left
			return turnDigSequence(ctx, a, "d", "r", "d", "l")
		case 4: // bottom-right
			return turnDigSequence(ctx, a, "r", "d", "r", "d", "l", "l")
		case 3: // top-right
			return turnDigSequence(ctx, a, "l", "d", "l", "d", "r", "r")
		case 2: // top-left
			return turnDigSequence(ctx, a, "d", "l", "d", "r")
		}
	}
	return nil
}

// turnDigSequence issues a sequence of "d" (dig in place), "l" (turn left),
// "r" (turn right) steps, in order.
func turnDigSequence(ctx context.Context, a *command.Agent, steps ...string) error {
	for _, step := range steps {
		var err error
		switch step {
		case "d":
			_, err = a.Dig(ctx)
		case "l":
			_, err = a.TurnLeft(ctx)
		case "r":
			_, err = a.TurnRight(ctx)
		default:
			err = fmt.Errorf("routine: unknown dig-sequence step %q", step)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// checksAndBreaks refuels and, if inventory is running low, dumps it per
// the configured strategy. Matches smart_mine_full's per-step housekeeping.
func checksAndBreaks(ctx context.Context, a *command.Agent, cfg map[string]any, threshold int) error {
	if err := refuelIfPossible(ctx, a); err != nil {
		return err
	}
	return maybeDump(ctx, a, cfg, threshold)
}

// digChute faces east and drills from the current point down to stop_y (or
// up to start_y, depending on topOrBottom), widening the cut with
// digInCrossPattern and running checksAndBreaks at every step.
func digChute(ctx context.Context, a *command.Agent, topOrBottom int, startY, stopY int64, class, edgeDir, cornerDir int, cfg map[string]any, threshold int) error {
	if err := faceDirection(ctx, a, 0); err != nil {
		return err
	}

	steps := startY - stopY
	if steps < 0 {
		steps = -steps
	}

	descend := topOrBottom == 1
	for step := int64(0); step < steps; step++ {
		if err := digInCrossPattern(ctx, a, class, edgeDir, cornerDir); err != nil {
			return err
		}
		if err := checksAndBreaks(ctx, a, cfg, threshold); err != nil {
			return err
		}
		if descend {
			if _, err := a.DigDown(ctx); err != nil {
				return err
			}
			if _, err := a.Down(ctx); err != nil {
				return err
			}
		} else {
			if _, err := a.DigUp(ctx); err != nil {
				return err
			}
			if _, err := a.Up(ctx); err != nil {
				return err
			}
		}
	}
	if err := digInCrossPattern(ctx, a, class, edgeDir, cornerDir); err != nil {
		return err
	}
	return checksAndBreaks(ctx, a, cfg, threshold)
}

// configPair reads a two-element [x, z] config value, falling back to
// (defX, defZ) when absent or malformed.
func configPair(cfg map[string]any, key string, defX, defZ int64) (int64, int64, bool) {
	if cfg == nil {
		return defX, defZ, false
	}
	raw, ok := cfg[key]
	if !ok {
		return defX, defZ, false
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 2 {
		return defX, defZ, false
	}
	return toI64(list[0]), toI64(list[1]), true
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
