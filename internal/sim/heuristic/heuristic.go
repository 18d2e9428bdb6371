// Package heuristic holds the pairwise placement cost shared by every
// assignment strategy: squared color distance scaled by the target weight,
// plus a proximity term that grows with how far a pixel travels.
package heuristic

// MaxProximityImportance keeps the summed cost of a full 128x128 canvas
// within int64 at the worst-case travel distance.
const MaxProximityImportance = 700

type Point struct {
	X uint16
	Y uint16
}

type RGB struct {
	R uint8
	G uint8
	B uint8
}

// Cost scores placing a source pixel (at src, colored srcCol) onto the target
// position dst whose desired color is dstCol. Lower is better.
func Cost(src, dst Point, srcCol, dstCol RGB, weight, proximityImportance int64) int64 {
	dx := int64(src.X) - int64(dst.X)
	dy := int64(src.Y) - int64(dst.Y)
	spatial := (dx*dx + dy*dy) * proximityImportance

	dr := int64(srcCol.R) - int64(dstCol.R)
	dg := int64(srcCol.G) - int64(dstCol.G)
	db := int64(srcCol.B) - int64(dstCol.B)
	color := dr*dr + dg*dg + db*db

	return color*weight + spatial*spatial
}
