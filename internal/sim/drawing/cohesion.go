package drawing

// up, left, right, down. Diagonals do not count.
var cohesionOffsets = [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

// StrokeReward returns p.StrokeReward if any 4-neighbor of newPos holds a
// source pixel painted by the same stroke as the pixel currently at oldPos,
// and 0 otherwise. Positions index the sidelen x sidelen permutation grid;
// stroke identity is looked up through each occupant's source coordinates.
func StrokeReward(newPos, oldPos int, cells []Cell, pixels []Pixel, sidelen int, p Params) int64 {
	x := newPos % sidelen
	y := newPos / sidelen
	strokeID := pixels[oldPos].cell(cells).StrokeID

	for _, off := range cohesionOffsets {
		nx := x + off[0]
		ny := y + off[1]
		if nx < 0 || nx >= sidelen || ny < 0 || ny >= sidelen {
			continue
		}
		if pixels[ny*sidelen+nx].cell(cells).StrokeID == strokeID {
			return p.StrokeReward
		}
	}
	return 0
}
