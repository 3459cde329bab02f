package vtex

import "fmt"

// Rect is an axis-aligned integer rectangle. X and Y are the top-left
// corner; the rectangle covers [X, X+W) × [Y, Y+H).
type Rect struct {
	X, Y int
	W, H int
}

// Rc is a convenience function to create a Rect.
func Rc(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Empty returns true if the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Min returns the top-left corner.
func (r Rect) Min() Point {
	return Point{X: r.X, Y: r.Y}
}

// Max returns the exclusive bottom-right corner.
func (r Rect) Max() Point {
	return Point{X: r.X + r.W, Y: r.Y + r.H}
}

// Contains returns true if the point (x, y) is inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Overlaps returns true if r and o share any area. Rectangles that only
// touch along an edge do not overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Overlap returns the intersection of r and o. The boolean is false when
// the rectangles do not overlap, in which case the returned Rect is zero.
func (r Rect) Overlap(o Rect) (Rect, bool) {
	if !r.Overlaps(o) {
		return Rect{}, false
	}
	minX := max(r.X, o.X)
	minY := max(r.Y, o.Y)
	maxX := min(r.X+r.W, o.X+o.W)
	maxY := min(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}, true
}

// Shift returns the rectangle with every field shifted right by level,
// i.e. scaled to detail level `level`.
func (r Rect) Shift(level int) Rect {
	return Rect{X: r.X >> level, Y: r.Y >> level, W: r.W >> level, H: r.H >> level}
}

// Translate returns the rectangle moved by (-origin.X, -origin.Y).
func (r Rect) Translate(origin Point) Rect {
	return Rect{X: r.X - origin.X, Y: r.Y - origin.Y, W: r.W, H: r.H}
}

// String returns a string representation of the rectangle.
func (r Rect) String() string {
	return fmt.Sprintf("Rect(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}
