package geo

import (
	"testing"
)

func TestMBRContains(t *testing.T) {
	m := MBR{
		Low:  Point{X: 10, Y: 20, Z: 40},
		High: Point{X: 20, Y: 30, Z: 50},
	}
	if !m.Contains(Point{X: 15, Y: 25, Z: 45}) {
		t.Error("interior point reported outside")
	}
	if m.Contains(Point{X: 0, Y: 0, Z: 0}) {
		t.Error("exterior point reported inside")
	}
	// Boundaries are inclusive.
	if !m.Contains(Point{X: 10, Y: 20, Z: 40}) || !m.Contains(Point{X: 20, Y: 30, Z: 50}) {
		t.Error("boundary points reported outside")
	}
}

func TestMBRContainsMBR(t *testing.T) {
	outer := MBR{Low: Point{X: 0, Y: 0}, High: Point{X: 10, Y: 10}}
	inner := MBR{Low: Point{X: 2, Y: 3}, High: Point{X: 4, Y: 5}}
	if !outer.ContainsMBR(inner) {
		t.Error("nested rectangle not contained")
	}
	if inner.ContainsMBR(outer) {
		t.Error("outer rectangle contained in inner")
	}
}

func TestMBRIntersects(t *testing.T) {
	a := MBR{Low: Point{X: 0, Y: 0}, High: Point{X: 5, Y: 5}}
	b := MBR{Low: Point{X: 4, Y: 4}, High: Point{X: 9, Y: 9}}
	c := MBR{Low: Point{X: 6, Y: 6}, High: Point{X: 9, Y: 9}}
	if !a.Intersects(b) || !b.Intersects(a) {
		t.Error("overlapping rectangles reported disjoint")
	}
	if a.Intersects(c) {
		t.Error("disjoint rectangles reported overlapping")
	}
	// Touching edges count as intersecting.
	d := MBR{Low: Point{X: 5, Y: 0}, High: Point{X: 7, Y: 5}}
	if !a.Intersects(d) {
		t.Error("touching rectangles reported disjoint")
	}
}

func TestFromWPoints(t *testing.T) {
	points := []WPoint{
		{P: Point{X: -1, Y: 3}, Weight: 1},
		{P: Point{X: 2, Y: -4}, Weight: 1},
		{P: Point{X: 0, Y: 0}, Weight: 1},
	}
	m := FromWPoints(points)
	want := MBR{Low: Point{X: -1, Y: -4}, High: Point{X: 2, Y: 3}}
	if m != want {
		t.Errorf("FromWPoints = %v, want %v", m, want)
	}
}

func TestCheckDomain(t *testing.T) {
	good := []Point{
		{X: -180, Y: -90},
		{X: 179.999999, Y: 89.999999},
		{X: 0, Y: 0, Z: 1000},
	}
	for _, p := range good {
		if err := CheckDomain(p, 3); err != nil {
			t.Errorf("CheckDomain(%v) = %v, want nil", p, err)
		}
	}
	bad := []Point{
		{X: -180.5, Y: 0},
		{X: 0, Y: 90.5},
		{X: 0, Y: 0, Z: -1},
	}
	for _, p := range bad {
		if err := CheckDomain(p, 3); err == nil {
			t.Errorf("CheckDomain(%v) = nil, want error", p)
		}
	}
}

func TestQueryAround(t *testing.T) {
	q := QueryAround(Point{X: 1, Y: 2}, 4, 1)
	if q.High.X-q.Low.X <= 0 || q.High.Y-q.Low.Y <= 0 {
		t.Fatal("degenerate query rectangle")
	}
	area := (q.High.X - q.Low.X) * (q.High.Y - q.Low.Y)
	if area < 3.999 || area > 4.001 {
		t.Errorf("area = %v, want 4", area)
	}
	if !q.Contains(Point{X: 1, Y: 2}) {
		t.Error("centre not inside query")
	}
}
