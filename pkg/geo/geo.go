// Package geo provides the geometric primitives shared by every sampling
// index: points, weighted points, axis-aligned bounding rectangles, and the
// fixed-point quantisation used by the Morton codec.
package geo

import (
	"fmt"
	"math"
)

// Quantisation grid for the Morton codec. Each coordinate must map to a
// non-negative 32-bit integer.
const (
	ResolutionX = 1e6
	ResolutionY = 1e6
	BaseX       = 180_000_000
	BaseY       = 90_000_000
)

// Point is a location in 2-D or 3-D space. Two-dimensional data keeps Z = 0
// everywhere, queries included, so the full three-axis predicates degenerate
// correctly. When present, Z carries an integral timestamp in seconds.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// WPoint is a point with a non-negative sampling weight. Uniform data uses
// weight 1.
type WPoint struct {
	P      Point   `json:"p"`
	Weight float64 `json:"weight"`
}

// MBR is a minimum bounding rectangle: low <= high in every dimension.
type MBR struct {
	Low  Point `json:"low"`
	High Point `json:"high"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%v, %v, %v)", p.X, p.Y, p.Z)
}

func (m MBR) String() string {
	return fmt.Sprintf("[low: %v, high: %v]", m.Low, m.High)
}

// Coord returns the coordinate along the given axis (0 = x, 1 = y, 2 = z).
func (p Point) Coord(axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// WithCoord returns a copy of p with the given axis replaced.
func (p Point) WithCoord(axis int, v float64) Point {
	switch axis {
	case 0:
		p.X = v
	case 1:
		p.Y = v
	default:
		p.Z = v
	}
	return p
}

// Scaled quantises the point onto the fixed grid.
func (p Point) Scaled() (x, y, z uint32) {
	x = uint32(int32(math.Round(p.X*ResolutionX)) + BaseX)
	y = uint32(int32(math.Round(p.Y*ResolutionY)) + BaseY)
	z = uint32(math.Floor(p.Z))
	return x, y, z
}

// Unscaled maps quantised grid coordinates back to a point.
func Unscaled(x, y, z uint32) Point {
	return Point{
		X: float64(int32(x)-BaseX) / ResolutionX,
		Y: float64(int32(y)-BaseY) / ResolutionY,
		Z: float64(z),
	}
}

// CheckDomain reports whether p quantises onto the grid: x in
// [-180, 180-1e-6], y in [-90, 90-1e-6] and, for dims == 3, z in [0, 2^32).
func CheckDomain(p Point, dims int) error {
	if p.X < -180 || p.X > 180-1/ResolutionX {
		return fmt.Errorf("x coordinate %v outside quantisation domain", p.X)
	}
	if p.Y < -90 || p.Y > 90-1/ResolutionY {
		return fmt.Errorf("y coordinate %v outside quantisation domain", p.Y)
	}
	if dims == 3 && (p.Z < 0 || p.Z >= math.Exp2(32)) {
		return fmt.Errorf("z coordinate %v outside quantisation domain", p.Z)
	}
	return nil
}

// Contains reports whether the point lies inside the rectangle, boundaries
// included.
func (m MBR) Contains(p Point) bool {
	return p.X >= m.Low.X && p.X <= m.High.X &&
		p.Y >= m.Low.Y && p.Y <= m.High.Y &&
		p.Z >= m.Low.Z && p.Z <= m.High.Z
}

// ContainsMBR reports whether other lies entirely inside m.
func (m MBR) ContainsMBR(other MBR) bool {
	return m.Low.X <= other.Low.X && m.Low.Y <= other.Low.Y && m.Low.Z <= other.Low.Z &&
		m.High.X >= other.High.X && m.High.Y >= other.High.Y && m.High.Z >= other.High.Z
}

// Intersects reports whether the two rectangles share any point.
func (m MBR) Intersects(other MBR) bool {
	return !(m.Low.X > other.High.X || m.High.X < other.Low.X ||
		m.Low.Y > other.High.Y || m.High.Y < other.Low.Y ||
		m.Low.Z > other.High.Z || m.High.Z < other.Low.Z)
}

// FromWPoints computes the bounding rectangle of a weighted point set.
func FromWPoints(points []WPoint) MBR {
	m := MBR{
		Low:  Point{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		High: Point{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
	for _, wp := range points {
		m.Low.X = math.Min(m.Low.X, wp.P.X)
		m.Low.Y = math.Min(m.Low.Y, wp.P.Y)
		m.Low.Z = math.Min(m.Low.Z, wp.P.Z)
		m.High.X = math.Max(m.High.X, wp.P.X)
		m.High.Y = math.Max(m.High.Y, wp.P.Y)
		m.High.Z = math.Max(m.High.Z, wp.P.Z)
	}
	return m
}

// QueryAround builds a rectangle of the given area and aspect ratio centred
// on a point. Used by the benchmark harness to sweep selectivities.
func QueryAround(center Point, area, ratio float64) MBR {
	width := math.Sqrt(area / ratio)
	height := area / width
	return MBR{
		Low:  Point{X: center.X - height/2, Y: center.Y - width/2, Z: center.Z},
		High: Point{X: center.X + height/2, Y: center.Y + width/2, Z: center.Z},
	}
}

// TotalWeight sums the weights of a point set.
func TotalWeight(points []WPoint) float64 {
	var sum float64
	for _, wp := range points {
		sum += wp.Weight
	}
	return sum
}
