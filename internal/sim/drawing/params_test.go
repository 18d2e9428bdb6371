package drawing

import "testing"

func TestMaxDist_Examples(t *testing.T) {
	p := Params{MaxDistBase: 10, MaxDistDecay: 0.5, MaxDistMin: 2}
	cases := []struct {
		age  uint32
		want uint32
	}{
		{0, 10},
		{29, 10},
		{30, 5},
		{60, 3}, // 2.5 rounds away from zero
		{90, 2}, // 1.25 -> 1, floored
		{300, 2},
	}
	for _, tc := range cases {
		if got := p.MaxDist(tc.age); got != tc.want {
			t.Fatalf("MaxDist(%d)=%d want %d", tc.age, got, tc.want)
		}
	}
}

func TestMaxDist_MonotonicAndFloored(t *testing.T) {
	params := []Params{
		{MaxDistBase: 10, MaxDistDecay: 0.5, MaxDistMin: 2},
		{MaxDistBase: 64, MaxDistDecay: 0.9, MaxDistMin: 1},
		{MaxDistBase: 5, MaxDistDecay: 1, MaxDistMin: 0},
		{MaxDistBase: 1, MaxDistDecay: 0.1, MaxDistMin: 4},
		{MaxDistBase: 100, MaxDistDecay: 0, MaxDistMin: 0},
	}
	for _, p := range params {
		prev := p.MaxDist(0)
		for age := uint32(0); age <= 5000; age++ {
			got := p.MaxDist(age)
			if got > prev {
				t.Fatalf("%+v: MaxDist(%d)=%d grew from %d", p, age, got, prev)
			}
			if got < p.MaxDistMin {
				t.Fatalf("%+v: MaxDist(%d)=%d below floor", p, age, got)
			}
			prev = got
		}
		if got := p.MaxDist(^uint32(0)); got < p.MaxDistMin {
			t.Fatalf("%+v: MaxDist(max)=%d below floor", p, got)
		}
	}
}

func TestAge_Saturates(t *testing.T) {
	if got := Age(100, 40); got != 60 {
		t.Fatalf("Age(100,40)=%d", got)
	}
	if got := Age(40, 100); got != 0 {
		t.Fatalf("future edit should be age 0, got %d", got)
	}
	if got := Age(7, 7); got != 0 {
		t.Fatalf("Age(7,7)=%d", got)
	}
}

func TestColorQuantize(t *testing.T) {
	cases := []struct {
		in   float32
		want uint8
	}{
		{-1, 0}, {0, 0}, {0.5, 128}, {0.999, 255}, {1, 255}, {2, 255},
	}
	for _, tc := range cases {
		if got := quantize(tc.in); got != tc.want {
			t.Fatalf("quantize(%v)=%d want %d", tc.in, got, tc.want)
		}
	}
	for v := 0; v < 256; v++ {
		c := ColorFromRGB(rgb(uint8(v), uint8(v), uint8(v)))
		if got := c.RGB().R; got != uint8(v) {
			t.Fatalf("round trip %d -> %d", v, got)
		}
	}
}

func TestInitCanvas(t *testing.T) {
	cells := InitCanvas(42)
	if len(cells) != CanvasSize*CanvasSize {
		t.Fatalf("len=%d", len(cells))
	}
	for i, c := range cells {
		if c.StrokeID != 0 || c.LastEdited != 42 {
			t.Fatalf("cell %d = %+v", i, c)
		}
	}
}
