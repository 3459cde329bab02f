package vtex

import (
	"fmt"
	"math/bits"
)

// Point is an integer position in virtual-address or cache-texel units.
type Point struct {
	X, Y int
}

// Pt is a convenience function to create a Point.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// String returns a string representation of the point.
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// isPow2 reports whether v is a positive power of two.
func isPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// log2 returns floor(log2(v)) for v > 0, or -1 otherwise.
func log2(v int) int {
	if v <= 0 {
		return -1
	}
	return bits.Len(uint(v)) - 1
}

// roundUp rounds v up to the next multiple of the power of two step.
func roundUp(v, step int) int {
	return (v + step - 1) &^ (step - 1)
}
