package vtex

import "fmt"

// Corner selects a child quadrant of a region node.
type Corner uint8

const (
	// TopLeft is child 0.
	TopLeft Corner = iota
	// TopRight is child 1.
	TopRight
	// BottomLeft is child 2.
	BottomLeft
	// BottomRight is child 3.
	BottomRight
)

// String returns a human-readable name for the corner.
func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "TopLeft"
	case TopRight:
		return "TopRight"
	case BottomLeft:
		return "BottomLeft"
	case BottomRight:
		return "BottomRight"
	default:
		return fmt.Sprintf("Corner(%d)", c)
	}
}

// RegionNode is one node of a RegionTree. Its rectangle is fixed at
// construction; only the usage count and dirty flag change afterwards.
type RegionNode struct {
	id        int  // index within its tree level
	rect      Rect // area of the virtual address space covered
	children  int  // arena index of the first of 4 children, -1 for leaves
	usedCount int  // live allocations overlapping rect
	dirty     bool // a mapping inside rect changed since last processed
}

// ID returns the node's index within its tree level.
func (n *RegionNode) ID() int { return n.id }

// Rect returns the area covered by the node.
func (n *RegionNode) Rect() Rect { return n.rect }

// UsedCount returns the number of live allocations overlapping the node.
// It is not a boolean: allocations in sibling subtrees that overlap an
// ancestor do not count here, but every allocation overlapping this node's
// rectangle does.
func (n *RegionNode) UsedCount() int { return n.usedCount }

// Dirty reports whether a mapping inside the node changed and has not been
// reconciled with the physical cache yet.
func (n *RegionNode) Dirty() bool { return n.dirty }

// IsLeaf reports whether the node covers exactly one page.
func (n *RegionNode) IsLeaf() bool { return n.children < 0 }

// Allocation is a handle to the region node an allocation occupies.
// It does not own the node; nodes live as long as the tree. The zero value
// is the null allocation.
type Allocation struct {
	ref int // node index + 1
}

// Valid reports whether the allocation refers to a node.
func (a Allocation) Valid() bool { return a.ref > 0 }

// Node returns the arena index of the allocated node, or -1 for the null
// allocation.
func (a Allocation) Node() int { return a.ref - 1 }

// RegionTree is a static quadtree over a square virtual address space.
// Nodes are stored in one flat slice, level by level from the root, so that
// parent to children addressing is index arithmetic.
//
// RegionTree is not safe for concurrent use.
type RegionTree struct {
	virtualSize int
	pageSize    int
	depth       int
	corner      Corner
	nodes       []RegionNode
}

// NewRegionTree creates a tree covering virtualSize × virtualSize texels
// with leaves of pageSize × pageSize. Both must be powers of 2.
func NewRegionTree(virtualSize, pageSize int) (*RegionTree, error) {
	if err := validateDims(virtualSize, pageSize); err != nil {
		return nil, err
	}

	depth := log2(virtualSize/pageSize) + 1
	total := 0
	for l := 0; l < depth; l++ {
		total += 1 << (2 * l)
	}

	t := &RegionTree{
		virtualSize: virtualSize,
		pageSize:    pageSize,
		depth:       depth,
		nodes:       make([]RegionNode, total),
	}

	// Link children: level l holds 4^l nodes and starts right after all
	// shallower levels; node i of level l owns children 4i..4i+3 of level l+1.
	idx := 0
	nextBase := 0
	for l := 0; l < depth; l++ {
		count := 1 << (2 * l)
		nextBase += count
		for i := 0; i < count; i++ {
			n := &t.nodes[idx]
			n.id = i
			n.children = -1
			if child := nextBase + 4*i; child < total {
				n.children = child
			}
			idx++
		}
	}

	// Children always follow their parent, so one forward pass assigns rects.
	t.nodes[0].rect = Rect{W: virtualSize, H: virtualSize}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.children < 0 {
			continue
		}
		hw, hh := n.rect.W/2, n.rect.H/2
		for c := 0; c < 4; c++ {
			t.nodes[n.children+c].rect = Rect{
				X: n.rect.X + (c%2)*hw,
				Y: n.rect.Y + (c/2)*hh,
				W: hw,
				H: hh,
			}
		}
	}

	return t, nil
}

// VirtualSize returns the side of the virtual address space.
func (t *RegionTree) VirtualSize() int { return t.virtualSize }

// PageSize returns the side of a page.
func (t *RegionTree) PageSize() int { return t.pageSize }

// Depth returns the number of tree levels, root included.
func (t *RegionTree) Depth() int { return t.depth }

// Len returns the total number of nodes.
func (t *RegionTree) Len() int { return len(t.nodes) }

// Node returns the node at arena index i.
func (t *RegionTree) Node(i int) *RegionNode { return &t.nodes[i] }

// Root returns the root node.
func (t *RegionTree) Root() *RegionNode { return &t.nodes[0] }

// StartCorner returns the corner AllocPages searches from.
func (t *RegionTree) StartCorner() Corner { return t.corner }

// SetStartCorner sets the corner AllocPages searches from.
func (t *RegionTree) SetStartCorner(c Corner) { t.corner = c % 4 }

// Rect returns the rectangle of an allocation. The null allocation has an
// empty rectangle.
func (t *RegionTree) Rect(a Allocation) Rect {
	if !a.Valid() {
		return Rect{}
	}
	return t.nodes[a.Node()].rect
}

// DetailLevel returns the detail level of a node: log2 of its side in pages.
// Leaves are level 0, the root is level Depth()-1.
func (t *RegionTree) DetailLevel(n *RegionNode) int {
	return log2(n.rect.W / t.pageSize)
}

// FindFreeRegion returns the finest node that can hold w × h and has no
// overlapping allocation. Children are searched in rotated order starting
// at start. w and h must already be page multiples. The null allocation is
// returned when nothing fits.
func (t *RegionTree) FindFreeRegion(w, h int, start Corner) Allocation {
	return Allocation{ref: t.findFree(0, w, h, int(start%4)) + 1}
}

func (t *RegionTree) findFree(i, w, h, start int) int {
	n := &t.nodes[i]
	if w > n.rect.W || h > n.rect.H {
		return -1
	}
	if n.children >= 0 {
		for k := 0; k < 4; k++ {
			c := (k + start) % 4
			if found := t.findFree(n.children+c, w, h, start); found >= 0 {
				return found
			}
		}
	}
	// A nonzero count may come from an allocation elsewhere that merely
	// overlaps this node, so only the node's own count decides.
	if n.usedCount == 0 {
		return i
	}
	return -1
}

// MarkRegion adjusts the usage count of every node overlapping rect by
// +1 (used) or -1. Marking used also flags those nodes dirty.
func (t *RegionTree) MarkRegion(rect Rect, used bool) {
	delta := -1
	if used {
		delta = 1
	}
	t.mark(0, rect, delta, used)
}

func (t *RegionTree) mark(i int, rect Rect, delta int, dirty bool) {
	n := &t.nodes[i]
	if !n.rect.Overlaps(rect) {
		return
	}
	n.usedCount += delta
	if dirty {
		n.dirty = true
	}
	if n.children >= 0 {
		for c := 0; c < 4; c++ {
			t.mark(n.children+c, rect, delta, dirty)
		}
	}
}

// MarkDirty flags every node overlapping rect dirty without changing usage.
func (t *RegionTree) MarkDirty(rect Rect) {
	t.mark(0, rect, 0, true)
}

// ClearDirty clears the dirty flag of the node at arena index i.
func (t *RegionTree) ClearDirty(i int) {
	t.nodes[i].dirty = false
}

// AllocPages allocates a region of at least w × h texels, rounded up to
// whole pages. It returns the null allocation when no region fits or when w
// or h is not positive.
func (t *RegionTree) AllocPages(w, h int) Allocation {
	if w <= 0 || h <= 0 {
		return Allocation{}
	}
	w = roundUp(w, t.pageSize)
	h = roundUp(h, t.pageSize)

	a := t.FindFreeRegion(w, h, t.corner)
	if a.Valid() {
		t.MarkRegion(t.nodes[a.Node()].rect, true)
	}
	return a
}

// FreePages releases an allocation. Each allocation must be freed exactly
// once; freeing the null allocation returns ErrNullAllocation.
func (t *RegionTree) FreePages(a Allocation) error {
	if !a.Valid() || a.Node() >= len(t.nodes) {
		return ErrNullAllocation
	}
	t.MarkRegion(t.nodes[a.Node()].rect, false)
	return nil
}

// TotalAllocs returns the number of live allocations.
func (t *RegionTree) TotalAllocs() int {
	return t.nodes[0].usedCount
}

// Walk visits every node depth-first, parents before children and children
// in TopLeft, TopRight, BottomLeft, BottomRight order. fn receives the arena
// index, the node and its detail level; returning false skips the node's
// subtree.
func (t *RegionTree) Walk(fn func(i int, n *RegionNode, level int) bool) {
	t.walk(0, t.depth-1, fn)
}

func (t *RegionTree) walk(i, level int, fn func(int, *RegionNode, int) bool) {
	n := &t.nodes[i]
	if !fn(i, n, level) || n.children < 0 {
		return
	}
	for c := 0; c < 4; c++ {
		t.walk(n.children+c, level-1, fn)
	}
}
