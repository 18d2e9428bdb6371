package drawing

// runBatch performs up to maxSwaps greedy swap attempts on s against in and
// returns how many swaps were accepted. Both Step and the continuous worker
// go through here.
func runBatch(s *State, in Inputs, maxSwaps int) int {
	n := len(s.pixels)
	side := s.settings.Sidelen
	p := s.params
	swaps := 0

	for attempt := 0; attempt < maxSwaps; attempt++ {
		apos := s.rng.Intn(n)
		ax := apos % side
		ay := apos / side

		radA := int(p.MaxDist(Age(in.Frame, s.pixels[apos].cell(in.Cells).LastEdited)))
		bx := clamp(ax+s.rng.Intn(2*radA+1)-radA, 0, side-1)
		by := clamp(ay+s.rng.Intn(2*radA+1)-radA, 0, side-1)
		bpos := by*side + bx

		// The draw used A's radius; B's own radius gets a veto.
		radB := int(p.MaxDist(Age(in.Frame, s.pixels[bpos].cell(in.Cells).LastEdited)))
		if abs(bx-ax) > radB || abs(by-ay) > radB {
			continue
		}

		currentA := s.pixels[apos].H + StrokeReward(apos, apos, in.Cells, s.pixels, side, p)
		currentB := s.pixels[bpos].H + StrokeReward(bpos, bpos, in.Cells, s.pixels, side, p)

		aOnBBase := s.cost(s.pixels[apos], bpos, in.Colors)
		bOnABase := s.cost(s.pixels[bpos], apos, in.Colors)
		aOnB := aOnBBase + StrokeReward(bpos, apos, in.Cells, s.pixels, side, p)
		bOnA := bOnABase + StrokeReward(apos, bpos, in.Cells, s.pixels, side, p)

		if (currentA-bOnA)+(currentB-aOnB) > 0 {
			s.pixels[apos], s.pixels[bpos] = s.pixels[bpos], s.pixels[apos]
			s.pixels[apos].H = bOnABase
			s.pixels[bpos].H = aOnBBase
			swaps++
		}
	}
	return swaps
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
