package vtex

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func newTestTree(t *testing.T, virtualSize, pageSize int) *RegionTree {
	t.Helper()
	tree, err := NewRegionTree(virtualSize, pageSize)
	if err != nil {
		t.Fatalf("NewRegionTree(%d, %d) = %v", virtualSize, pageSize, err)
	}
	return tree
}

func TestNewRegionTree(t *testing.T) {
	tests := []struct {
		virtual, page int
		depth, nodes  int
	}{
		{128, 128, 1, 1},
		{256, 128, 2, 5},
		{1024, 128, 4, 85},
		{16384, 128, 8, 21845},
	}

	for _, tt := range tests {
		tree := newTestTree(t, tt.virtual, tt.page)
		if tree.Depth() != tt.depth {
			t.Errorf("%d/%d: Depth() = %d, want %d", tt.virtual, tt.page, tree.Depth(), tt.depth)
		}
		if tree.Len() != tt.nodes {
			t.Errorf("%d/%d: Len() = %d, want %d", tt.virtual, tt.page, tree.Len(), tt.nodes)
		}
		if got := tree.Root().Rect(); got != Rc(0, 0, tt.virtual, tt.virtual) {
			t.Errorf("%d/%d: root rect = %v", tt.virtual, tt.page, got)
		}
	}
}

func TestNewRegionTree_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		virtual, page int
	}{
		{"virtual not pow2", 1000, 128},
		{"page not pow2", 1024, 100},
		{"page too large", 128, 256},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegionTree(tt.virtual, tt.page)
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Errorf("NewRegionTree() = %v, want *ConfigError", err)
			}
		})
	}
}

func TestRegionTree_ChildLayout(t *testing.T) {
	tree := newTestTree(t, 1024, 128)

	root := tree.Root()
	want := []Rect{
		Rc(0, 0, 512, 512),
		Rc(512, 0, 512, 512),
		Rc(0, 512, 512, 512),
		Rc(512, 512, 512, 512),
	}
	for c, r := range want {
		n := tree.Node(root.children + c)
		if n.Rect() != r {
			t.Errorf("child %d rect = %v, want %v", c, n.Rect(), r)
		}
		if n.ID() != c {
			t.Errorf("child %d ID() = %d, want %d", c, n.ID(), c)
		}
	}

	// Every non-leaf is exactly tiled by its children; leaves are one page.
	for i := 0; i < tree.Len(); i++ {
		n := tree.Node(i)
		if n.IsLeaf() {
			if n.Rect().W != 128 || n.Rect().H != 128 {
				t.Errorf("leaf %d rect = %v, want one page", i, n.Rect())
			}
			continue
		}
		area := 0
		for c := 0; c < 4; c++ {
			child := tree.Node(n.children + c).Rect()
			if _, ok := n.Rect().Overlap(child); !ok {
				t.Errorf("node %d child %d %v outside parent %v", i, c, child, n.Rect())
			}
			area += child.W * child.H
		}
		if area != n.Rect().W*n.Rect().H {
			t.Errorf("node %d children area = %d, want %d", i, area, n.Rect().W*n.Rect().H)
		}
	}
}

func TestRegionTree_Walk(t *testing.T) {
	tree := newTestTree(t, 512, 128)

	var order []int
	var levels []int
	tree.Walk(func(i int, n *RegionNode, level int) bool {
		order = append(order, i)
		levels = append(levels, level)
		if got := tree.DetailLevel(n); got != level {
			t.Errorf("node %d: Walk level %d, DetailLevel %d", i, level, got)
		}
		return true
	})

	if len(order) != tree.Len() {
		t.Fatalf("Walk visited %d nodes, want %d", len(order), tree.Len())
	}
	// Pre-order: root, its TL child, then TL's children.
	wantPrefix := []int{0, 1, 5, 6, 7, 8, 2, 9}
	for k, want := range wantPrefix {
		if order[k] != want {
			t.Errorf("visit %d = node %d, want %d", k, order[k], want)
		}
	}
	if levels[0] != 2 || levels[1] != 1 || levels[2] != 0 {
		t.Errorf("levels = %v, want 2, 1, 0 prefix", levels[:3])
	}

	// Pruning at the root visits only the root.
	count := 0
	tree.Walk(func(int, *RegionNode, int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("pruned Walk visited %d nodes, want 1", count)
	}
}

func TestRegionTree_AllocFit(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want Rect
	}{
		{"sub page", 100, 10, Rc(0, 0, 128, 128)},
		{"one page", 128, 128, Rc(0, 0, 128, 128)},
		{"rounds to two pages", 129, 128, Rc(0, 0, 256, 256)},
		{"non square", 384, 256, Rc(0, 0, 512, 512)},
		{"everything", 1024, 1024, Rc(0, 0, 1024, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newTestTree(t, 1024, 128)
			a := tree.AllocPages(tt.w, tt.h)
			if !a.Valid() {
				t.Fatal("AllocPages() returned null")
			}
			if got := tree.Rect(a); got != tt.want {
				t.Errorf("Rect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegionTree_AllocInvalidSize(t *testing.T) {
	tree := newTestTree(t, 1024, 128)
	for _, sz := range [][2]int{{0, 10}, {10, 0}, {-5, 5}} {
		if a := tree.AllocPages(sz[0], sz[1]); a.Valid() {
			t.Errorf("AllocPages(%d, %d) = %v, want null", sz[0], sz[1], tree.Rect(a))
		}
	}
	if tree.TotalAllocs() != 0 {
		t.Errorf("TotalAllocs() = %d, want 0", tree.TotalAllocs())
	}
	if a := tree.AllocPages(2048, 128); a.Valid() {
		t.Error("AllocPages() larger than the space should fail")
	}
}

func TestRegionTree_Exhaustion(t *testing.T) {
	tree := newTestTree(t, 256, 128)

	var allocs []Allocation
	for i := 0; i < 4; i++ {
		a := tree.AllocPages(128, 128)
		if !a.Valid() {
			t.Fatalf("allocation %d failed", i)
		}
		allocs = append(allocs, a)
	}
	if a := tree.AllocPages(128, 128); a.Valid() {
		t.Errorf("fifth allocation = %v, want null", tree.Rect(a))
	}

	// Pages are handed out TL, TR, BL, BR.
	want := []Rect{Rc(0, 0, 128, 128), Rc(128, 0, 128, 128), Rc(0, 128, 128, 128), Rc(128, 128, 128, 128)}
	for i, a := range allocs {
		if got := tree.Rect(a); got != want[i] {
			t.Errorf("allocation %d = %v, want %v", i, got, want[i])
		}
	}

	if err := tree.FreePages(allocs[2]); err != nil {
		t.Fatalf("FreePages() = %v", err)
	}
	a := tree.AllocPages(64, 64)
	if got := tree.Rect(a); got != want[2] {
		t.Errorf("reallocation = %v, want %v", got, want[2])
	}
}

func TestRegionTree_CoarseBlockedByFine(t *testing.T) {
	tree := newTestTree(t, 256, 128)
	tree.AllocPages(128, 128)
	if a := tree.AllocPages(256, 256); a.Valid() {
		t.Error("root allocated while a leaf is in use")
	}
}

func TestRegionTree_StartCorner(t *testing.T) {
	tests := []struct {
		corner Corner
		want   Rect
	}{
		{TopLeft, Rc(0, 0, 128, 128)},
		{TopRight, Rc(896, 0, 128, 128)},
		{BottomLeft, Rc(0, 896, 128, 128)},
		{BottomRight, Rc(896, 896, 128, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.corner.String(), func(t *testing.T) {
			tree := newTestTree(t, 1024, 128)
			tree.SetStartCorner(tt.corner)
			if got := tree.Rect(tree.AllocPages(128, 128)); got != tt.want {
				t.Errorf("first allocation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegionTree_FreeNull(t *testing.T) {
	tree := newTestTree(t, 256, 128)
	tree.AllocPages(128, 128)
	if err := tree.FreePages(Allocation{}); !errors.Is(err, ErrNullAllocation) {
		t.Errorf("FreePages(null) = %v, want ErrNullAllocation", err)
	}
	if tree.TotalAllocs() != 1 {
		t.Errorf("TotalAllocs() = %d, want 1 after freeing null", tree.TotalAllocs())
	}
}

func TestRegionTree_DirtyPropagation(t *testing.T) {
	tree := newTestTree(t, 1024, 128)
	a := tree.AllocPages(300, 200)
	r := tree.Rect(a)

	for i := 0; i < tree.Len(); i++ {
		n := tree.Node(i)
		if want := n.Rect().Overlaps(r); n.Dirty() != want {
			t.Errorf("node %d %v: Dirty() = %v, want %v", i, n.Rect(), n.Dirty(), want)
		}
	}

	// Freeing does not set or clear dirty flags.
	for i := 0; i < tree.Len(); i++ {
		tree.ClearDirty(i)
	}
	if err := tree.FreePages(a); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < tree.Len(); i++ {
		if tree.Node(i).Dirty() {
			t.Errorf("node %d dirty after FreePages", i)
		}
	}
}

func TestRegionTree_MarkDirty(t *testing.T) {
	tree := newTestTree(t, 512, 128)
	tree.MarkDirty(Rc(384, 384, 128, 128))

	dirty := 0
	for i := 0; i < tree.Len(); i++ {
		if tree.Node(i).Dirty() {
			dirty++
		}
		if tree.Node(i).UsedCount() != 0 {
			t.Errorf("node %d UsedCount() = %d after MarkDirty", i, tree.Node(i).UsedCount())
		}
	}
	if dirty != 3 {
		t.Errorf("dirty nodes = %d, want 3 (one per level)", dirty)
	}
}

// checkUsage verifies every node's usedCount against the live allocations.
func checkUsage(t *testing.T, tree *RegionTree, live []Rect) {
	t.Helper()
	for i := 0; i < tree.Len(); i++ {
		n := tree.Node(i)
		want := 0
		for _, r := range live {
			if n.Rect().Overlaps(r) {
				want++
			}
		}
		if n.UsedCount() != want {
			t.Fatalf("node %d %v: UsedCount() = %d, want %d", i, n.Rect(), n.UsedCount(), want)
		}
	}
}

func TestRegionTree_RandomNoOverlap(t *testing.T) {
	const pageSize = 64
	tree := newTestTree(t, 2048, pageSize)
	rng := rand.New(rand.NewPCG(1, 2))

	type live struct {
		a    Allocation
		w, h int
	}
	var allocs []live

	for step := 0; step < 2000; step++ {
		if len(allocs) > 0 && rng.IntN(3) == 0 {
			k := rng.IntN(len(allocs))
			if err := tree.FreePages(allocs[k].a); err != nil {
				t.Fatalf("step %d: FreePages() = %v", step, err)
			}
			allocs = append(allocs[:k], allocs[k+1:]...)
		} else {
			w := 1 + rng.IntN(600)
			h := 1 + rng.IntN(600)
			a := tree.AllocPages(w, h)
			if a.Valid() {
				r := tree.Rect(a)
				if r.W < w || r.H < h {
					t.Fatalf("step %d: %v too small for %dx%d", step, r, w, h)
				}
				if r.X%r.W != 0 || r.Y%r.H != 0 {
					t.Fatalf("step %d: %v not aligned to its size", step, r)
				}
				allocs = append(allocs, live{a, w, h})
			}
		}

		if tree.TotalAllocs() != len(allocs) {
			t.Fatalf("step %d: TotalAllocs() = %d, want %d", step, tree.TotalAllocs(), len(allocs))
		}
		for i := range allocs {
			for j := i + 1; j < len(allocs); j++ {
				if tree.Rect(allocs[i].a).Overlaps(tree.Rect(allocs[j].a)) {
					t.Fatalf("step %d: %v overlaps %v", step,
						tree.Rect(allocs[i].a), tree.Rect(allocs[j].a))
				}
			}
		}
		if step%100 == 0 {
			rects := make([]Rect, len(allocs))
			for i, l := range allocs {
				rects[i] = tree.Rect(l.a)
			}
			checkUsage(t, tree, rects)
		}
	}

	for _, l := range allocs {
		if err := tree.FreePages(l.a); err != nil {
			t.Fatal(err)
		}
	}
	checkUsage(t, tree, nil)
}

func TestRegionTree_Deterministic(t *testing.T) {
	run := func() []Rect {
		tree := newTestTree(t, 4096, 128)
		rng := rand.New(rand.NewPCG(42, 7))
		var out []Rect
		var allocs []Allocation
		for i := 0; i < 300; i++ {
			if len(allocs) > 0 && rng.IntN(4) == 0 {
				k := rng.IntN(len(allocs))
				_ = tree.FreePages(allocs[k])
				allocs = append(allocs[:k], allocs[k+1:]...)
				continue
			}
			a := tree.AllocPages(1+rng.IntN(1024), 1+rng.IntN(1024))
			out = append(out, tree.Rect(a))
			if a.Valid() {
				allocs = append(allocs, a)
			}
		}
		return out
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("allocation %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRegionTree_EndToEnd(t *testing.T) {
	tree := newTestTree(t, 16384, 128)

	batches := []struct{ size, count int }{
		{4096, 4},
		{1024, 8},
		{256, 256},
		{128, 512},
	}

	var allocs []Allocation
	for _, b := range batches {
		for i := 0; i < b.count; i++ {
			a := tree.AllocPages(b.size, b.size)
			if !a.Valid() {
				t.Fatalf("%dx%d allocation %d failed", b.size, b.size, i)
			}
			if r := tree.Rect(a); r.W != b.size || r.H != b.size {
				t.Fatalf("%dx%d allocation got %v", b.size, b.size, r)
			}
			allocs = append(allocs, a)
		}
	}

	if got := tree.TotalAllocs(); got != 780 {
		t.Errorf("TotalAllocs() = %d, want 780", got)
	}

	for _, a := range allocs {
		if err := tree.FreePages(a); err != nil {
			t.Fatalf("FreePages() = %v", err)
		}
	}
	if got := tree.TotalAllocs(); got != 0 {
		t.Errorf("TotalAllocs() after freeing = %d, want 0", got)
	}

	a := tree.FindFreeRegion(16384, 16384, TopLeft)
	if !a.Valid() || a.Node() != 0 {
		t.Errorf("FindFreeRegion(16384, 16384) = node %d, want root", a.Node())
	}
}

func TestCorner_String(t *testing.T) {
	if got := BottomRight.String(); got != "BottomRight" {
		t.Errorf("BottomRight.String() = %q", got)
	}
	if got := Corner(9).String(); got != "Corner(9)" {
		t.Errorf("Corner(9).String() = %q", got)
	}
}

func BenchmarkRegionTree_AllocFree(b *testing.B) {
	tree, err := NewRegionTree(16384, 128)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		a := tree.AllocPages(1024, 1024)
		_ = tree.FreePages(a)
	}
}
