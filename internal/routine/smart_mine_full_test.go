package routine

import "testing"

func TestDigCalculationZeroDimensionReturnsNoPoints(t *testing.T) {
	points, classes, edges, corners := digCalculation(0, 0, 0, 0)
	if points != nil || classes != nil || edges != nil || corners != nil {
		t.Errorf("digCalculation(0,0,0,0) = %v, want all nil", points)
	}
}

func TestDigCalculationSingleCellIsBottomLeftCorner(t *testing.T) {
	points, classes, edges, corners := digCalculation(0, 0, 1, 1)
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want 1 (%v)", len(points), points)
	}
	if points[0] != ([2]int64{0, 0}) {
		t.Errorf("points[0] = %v, want [0 0]", points[0])
	}
	if classes[0] != 2 {
		t.Errorf("pointClass = %d, want 2 (corner)", classes[0])
	}
	if edges[0] != 0 {
		t.Errorf("edgeDirection = %d, want 0", edges[0])
	}
	if corners[0] != 1 {
		t.Errorf("cornerDirection = %d, want 1 (bottom-left)", corners[0])
	}
}

func TestDigCalculationPointsStayWithinRectangleBounds(t *testing.T) {
	const startX, startZ, width, height = int64(100), int64(-50), int64(5), int64(4)
	points, classes, edges, corners := digCalculation(startX, startZ, width, height)

	if len(classes) != len(points) || len(edges) != len(points) || len(corners) != len(points) {
		t.Fatalf("parallel slice length mismatch: points=%d classes=%d edges=%d corners=%d",
			len(points), len(classes), len(edges), len(corners))
	}

	for i, p := range points {
		if p[0] < startX || p[0] > startX+width-1 {
			t.Errorf("points[%d].x = %d, out of [%d, %d]", i, p[0], startX, startX+width-1)
		}
		if p[1] < startZ || p[1] > startZ+height-1 {
			t.Errorf("points[%d].z = %d, out of [%d, %d]", i, p[1], startZ, startZ+height-1)
		}
		if classes[i] < 1 || classes[i] > 4 {
			t.Errorf("classes[%d] = %d, want 1-4", i, classes[i])
		}
	}
}
