package heuristic

import (
	"math"
	"testing"
)

func TestCost(t *testing.T) {
	black := RGB{}
	white := RGB{R: 255, G: 255, B: 255}
	cases := []struct {
		name      string
		src, dst  Point
		a, b      RGB
		weight    int64
		proximity int64
		want      int64
	}{
		{name: "identical", src: Point{3, 4}, dst: Point{3, 4}, a: white, b: white, weight: 7, proximity: 9, want: 0},
		{name: "color only", src: Point{0, 0}, dst: Point{0, 0}, a: black, b: white, weight: 1, want: 3 * 255 * 255},
		{name: "weighted color", src: Point{0, 0}, dst: Point{0, 0}, a: RGB{R: 10}, b: RGB{}, weight: 3, want: 300},
		{name: "proximity ignored at zero", src: Point{0, 0}, dst: Point{10, 10}, a: black, b: black, weight: 1, proximity: 0, want: 0},
		{name: "proximity squared", src: Point{0, 0}, dst: Point{3, 4}, a: black, b: black, weight: 1, proximity: 2, want: 50 * 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cost(tc.src, tc.dst, tc.a, tc.b, tc.weight, tc.proximity)
			if got != tc.want {
				t.Fatalf("Cost()=%d want %d", got, tc.want)
			}
		})
	}
}

func TestCost_Symmetric(t *testing.T) {
	a := RGB{R: 12, G: 200, B: 7}
	b := RGB{R: 90, G: 1, B: 255}
	p := Point{X: 5, Y: 9}
	q := Point{X: 17, Y: 2}
	if Cost(p, q, a, b, 4, 3) != Cost(q, p, b, a, 4, 3) {
		t.Fatalf("cost should be symmetric in (src,dst) and (a,b)")
	}
}

func TestCost_WorstCaseCanvasFitsInt64(t *testing.T) {
	far := Cost(Point{0, 0}, Point{127, 127}, RGB{}, RGB{R: 255, G: 255, B: 255}, 16, MaxProximityImportance)
	if far <= 0 {
		t.Fatalf("worst-case pixel cost overflowed: %d", far)
	}
	if far > math.MaxInt64/(128*128) {
		t.Fatalf("worst-case pixel cost %d leaves no room for a full canvas total", far)
	}
}
