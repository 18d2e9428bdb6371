package drawing

import "testing"

func TestStrokeReward_AdjacentOnly(t *testing.T) {
	const side = 4
	p := Params{StrokeReward: -50}
	cells := InitCanvas(0)
	uniqueStrokes(cells)
	setStroke(cells, 1, 1, 7)
	setStroke(cells, 2, 1, 7) // adjacent to (1,1)
	setStroke(cells, 3, 3, 7) // far from both
	setStroke(cells, 2, 2, 7) // diagonal to (3,3), adjacent to (2,1)
	px := identityPixels(side)

	pos := func(x, y int) int { return y*side + x }

	if got := StrokeReward(pos(1, 1), pos(1, 1), cells, px, side, p); got != -50 {
		t.Fatalf("adjacent pair should earn reward, got %d", got)
	}
	if got := StrokeReward(pos(3, 3), pos(3, 3), cells, px, side, p); got != 0 {
		t.Fatalf("diagonal or distant same-stroke cells must not count, got %d", got)
	}
	if got := StrokeReward(pos(0, 0), pos(0, 0), cells, px, side, p); got != 0 {
		t.Fatalf("unique stroke should earn nothing, got %d", got)
	}
}

func TestStrokeReward_EvaluatesCandidateOccupant(t *testing.T) {
	const side = 4
	p := Params{StrokeReward: 9}
	cells := InitCanvas(0)
	uniqueStrokes(cells)
	setStroke(cells, 1, 1, 7)
	setStroke(cells, 3, 3, 7)
	px := identityPixels(side)

	// The pixel from (3,3) would be cohesive if it sat at (0,1), next to (1,1).
	if got := StrokeReward(1*side+0, 3*side+3, cells, px, side, p); got != 9 {
		t.Fatalf("candidate placement next to same stroke should earn reward, got %d", got)
	}
	// But not at (0,3): neighbors (0,2) and (1,3) hold other strokes.
	if got := StrokeReward(3*side+0, 3*side+3, cells, px, side, p); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

func TestStrokeReward_FollowsPermutation(t *testing.T) {
	const side = 3
	p := Params{StrokeReward: 1}
	cells := InitCanvas(0)
	uniqueStrokes(cells)
	setStroke(cells, 2, 2, 5)
	setStroke(cells, 0, 0, 5)
	px := identityPixels(side)

	center := 1*side + 1
	if got := StrokeReward(0, 0, cells, px, side, p); got != 0 {
		t.Fatalf("identity placement: got %d", got)
	}
	// Move source (2,2) next to canvas (0,0) by swapping it into canvas (1,0).
	px[1], px[8] = px[8], px[1]
	if got := StrokeReward(0, 0, cells, px, side, p); got != 1 {
		t.Fatalf("cohesion follows occupants, not canvas slots: got %d", got)
	}
	if got := StrokeReward(center, center, cells, px, side, p); got != 0 {
		t.Fatalf("center: got %d", got)
	}
}

func TestStrokeReward_EdgesAreSkipped(t *testing.T) {
	const side = 1
	cells := InitCanvas(0)
	px := identityPixels(side)
	if got := StrokeReward(0, 0, cells, px, side, Params{StrokeReward: 3}); got != 0 {
		t.Fatalf("single cell has no neighbors, got %d", got)
	}
}
