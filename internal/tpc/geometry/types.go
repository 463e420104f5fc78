package geometry

import (
	"fmt"
	"math"
)

// View identifies one of the three wire planes of an APA.
type View uint8

const (
	ViewU View = iota // first induction plane
	ViewV             // second induction plane
	ViewX             // collection plane
)

// Views lists the planes in channel order.
var Views = [3]View{ViewU, ViewV, ViewX}

// String returns the single-letter plane name.
func (v View) String() string {
	switch v {
	case ViewU:
		return "U"
	case ViewV:
		return "V"
	case ViewX:
		return "X"
	default:
		return fmt.Sprintf("View(%d)", uint8(v))
	}
}

// Induction reports whether v is an induction plane (U or V).
func (v View) Induction() bool {
	return v == ViewU || v == ViewV
}

// ParseView converts "U", "V" or "X" (case-insensitive) to a View.
func ParseView(s string) (View, error) {
	switch s {
	case "U", "u":
		return ViewU, nil
	case "V", "v":
		return ViewV, nil
	case "X", "x", "Z", "z":
		return ViewX, nil
	}
	return 0, fmt.Errorf("unknown view %q", s)
}

// Channel is a decoded global channel number.
type Channel struct {
	Global    uint64 // global wire index
	APA       uint64 // Global / channels per APA
	Local     uint64 // Global % channels per APA
	View      View
	ViewIndex uint64 // Local minus the first channel of View
}

// Point is a position in detector coordinates (cm).
type Point struct {
	X, Y, Z float64
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Unit returns p scaled to unit length, or the zero point if p is zero.
func (p Point) Unit() Point {
	n := p.Norm()
	if n == 0 {
		return Point{}
	}
	return Point{X: p.X / n, Y: p.Y / n, Z: p.Z / n}
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return p.Sub(o).Norm()
}

// DistanceXZ returns the distance between p and o projected on the x-z plane.
func (p Point) DistanceXZ(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Z-o.Z)
}
