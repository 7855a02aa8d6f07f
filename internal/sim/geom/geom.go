package geom

import "math"

type Vector3 struct{ X, Y, Z float64 }

type Point3 struct{ X, Y, Z float64 }

func (v Vector3) Dot(o Vector3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vector3) Mag() float64 { return math.Sqrt(v.Dot(v)) }

func (p Point3) Sub(o Point3) Vector3 { return Vector3{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z} }

func (p Point3) Array() [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

// Slice is the wire form of a position attribute.
func (p Point3) Slice() []float64 { return []float64{p.X, p.Y, p.Z} }

func PointFrom(a [3]float64) Point3 { return Point3{X: a[0], Y: a[1], Z: a[2]} }

// DistXZ is the horizontal distance; terrain queries ignore height.
func DistXZ(a, b Point3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// FloorDiv divides rounding towards negative infinity. b > 0.
func FloorDiv(a, b int) int {
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Cell maps a horizontal coordinate onto its integer grid cell.
func Cell(x, z float64) (int, int) {
	return int(math.Floor(x)), int(math.Floor(z))
}
