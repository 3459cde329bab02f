package vtex

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
)

// textureEntry is one row of the logical texture table.
type textureEntry struct {
	alloc Allocation
	w, h  int
	live  bool
}

// pendingNode is a node whose slot is committed while some overlapping
// textures rejected their page. Later passes retry only those textures,
// into the same slot.
type pendingNode struct {
	slot int
	ids  []int
}

// dirtyNode is a node collected by a request pass.
type dirtyNode struct {
	index int
	level int
}

// PassStats summarizes one RequestPages pass.
type PassStats struct {
	// DirtyNodes is the number of dirty nodes with an indirection level.
	DirtyNodes int

	// Processed is the number of dirty nodes that claimed a slot.
	Processed int

	// Requests is the number of RequestPage calls made.
	Requests int

	// Accepted is the number of requests the page source accepted.
	Accepted int

	// Rejected is the number of requests the page source rejected.
	Rejected int

	// SlotsCommitted is the number of slots that became resident.
	SlotsCommitted int

	// Deferred is the number of dirty nodes left for a later pass because
	// the slots ran out. Nodes retrying rejected pages into their committed
	// slot are never deferred.
	Deferred int

	// Duration is the wall time of the pass.
	Duration time.Duration
}

// Stats is a snapshot of engine state.
type Stats struct {
	Textures      int
	Allocations   int
	FreeSlots     int
	ResidentSlots int
	PendingNodes  int
	Passes        int
	Requests      int
	Accepted      int
}

// TextureParams maps a logical texture's UV space into the virtual UV
// space: virtualUV = Offset + uv * Scale.
type TextureParams struct {
	ID     int
	Offset mgl32.Vec2
	Scale  mgl32.Vec2
}

// Engine is the virtual texture paging engine. It registers logical
// textures in a RegionTree, finds regions whose mapping changed, claims
// physical cache slots for them and asks a PageSource to fill them, keeping
// an IndirectionMap in step with what was accepted.
//
// Resident slots are never reclaimed: once the pool is exhausted, further
// dirty nodes wait until slots are returned by rejected requests.
//
// Engine is not safe for concurrent use. Drive it from one update loop.
type Engine struct {
	id     uuid.UUID
	cfg    Config
	source PageSource
	dev    Device

	tree        *RegionTree
	indirection *IndirectionMap

	textures     []textureEntry
	freeTextures []int

	side      int   // cache grid side in pages
	freeSlots []int // LIFO; the last element is handed out next
	resident  int

	cacheTex []TextureID

	// Nodes with a committed slot and rejected textures, by node index.
	pending map[int]*pendingNode

	passes   int
	requests int
	accepted int

	closed bool
	log    *slog.Logger
}

// New creates a paging engine. dev may be nil, in which case no GPU
// textures are created and Flush only updates CPU state.
func New(cfg Config, source PageSource, dev Device) (*Engine, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tree, err := NewRegionTree(cfg.VirtualSize, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	tree.SetStartCorner(cfg.StartCorner)

	ind, err := NewIndirectionMap(cfg.VirtualSize, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		id:          uuid.New(),
		cfg:         cfg,
		source:      source,
		dev:         dev,
		tree:        tree,
		indirection: ind,
		side:        cacheSide(cfg.MaxResident),
		freeSlots:   make([]int, cfg.MaxResident),
		pending:     make(map[int]*pendingNode),
	}
	e.cfg.Formats = slices.Clone(cfg.Formats)
	e.log = Logger().With("engine", e.id.String())

	for i := range e.freeSlots {
		e.freeSlots[i] = cfg.MaxResident - 1 - i
	}

	if dev != nil {
		if err := e.createGPUResources(); err != nil {
			e.releaseGPUResources()
			return nil, err
		}
	}

	e.log.Info("vtex: engine created",
		"virtualSize", cfg.VirtualSize,
		"pageSize", cfg.PageSize,
		"maxResident", cfg.MaxResident,
		"cacheSide", e.side,
		"levels", ind.Levels())
	return e, nil
}

func (e *Engine) createGPUResources() error {
	size := e.side * e.cfg.PageSize
	for i, f := range e.cfg.Formats {
		tex, err := e.dev.CreateTexture(TextureDescriptor{
			Label:         fmt.Sprintf("vtex-cache-%d-%s", i, e.id),
			Width:         size,
			Height:        size,
			MipLevelCount: 1,
			Format:        f,
			Usage:         CacheTextureUsage,
		})
		if err != nil {
			return fmt.Errorf("vtex: create cache texture %d: %w", i, err)
		}
		e.cacheTex = append(e.cacheTex, tex)
	}
	return e.indirection.Attach(e.dev, "vtex-indirection-"+e.id.String())
}

func (e *Engine) releaseGPUResources() {
	for _, tex := range e.cacheTex {
		e.dev.DestroyTexture(tex)
	}
	e.cacheTex = nil
	e.indirection.Release()
}

// ID returns the engine's unique id, used in GPU labels and log records.
func (e *Engine) ID() uuid.UUID { return e.id }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Tree returns the region tree.
func (e *Engine) Tree() *RegionTree { return e.tree }

// Indirection returns the indirection map.
func (e *Engine) Indirection() *IndirectionMap { return e.indirection }

// CreateTexture registers a logical texture of w × h texels and returns its
// id. Ids of destroyed textures are reused, most recent first. When the
// virtual address space has no room ErrRegionExhausted is returned and no id
// is consumed.
func (e *Engine) CreateTexture(w, h int) (int, error) {
	if e.closed {
		return -1, ErrEngineClosed
	}
	alloc := e.tree.AllocPages(w, h)
	if !alloc.Valid() {
		e.log.Warn("vtex: region allocation failed", "width", w, "height", h)
		return -1, fmt.Errorf("%w: %dx%d", ErrRegionExhausted, w, h)
	}

	e.dropPending(e.tree.Rect(alloc))

	entry := textureEntry{alloc: alloc, w: w, h: h, live: true}
	var id int
	if n := len(e.freeTextures); n > 0 {
		id = e.freeTextures[n-1]
		e.freeTextures = e.freeTextures[:n-1]
		e.textures[id] = entry
	} else {
		id = len(e.textures)
		e.textures = append(e.textures, entry)
	}

	e.log.Debug("vtex: texture created", "id", id, "rect", e.tree.Rect(alloc).String())
	return id, nil
}

// DestroyTexture frees a logical texture's region and recycles its id.
// Pages already resident for it stay resident.
func (e *Engine) DestroyTexture(id int) error {
	if e.closed {
		return ErrEngineClosed
	}
	t, ok := e.texture(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	r := e.tree.Rect(t.alloc)
	if err := e.tree.FreePages(t.alloc); err != nil {
		return err
	}
	e.dropPending(r)
	*t = textureEntry{}
	e.freeTextures = append(e.freeTextures, id)
	e.log.Debug("vtex: texture destroyed", "id", id)
	return nil
}

// Invalidate marks a texture's region dirty so its pages are requested
// again on the next pass, e.g. after its source data changed.
func (e *Engine) Invalidate(id int) error {
	if e.closed {
		return ErrEngineClosed
	}
	t, ok := e.texture(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	r := e.tree.Rect(t.alloc)
	e.tree.MarkDirty(r)
	e.dropPending(r)
	return nil
}

// dropPending forgets the retry lists of nodes overlapping r. Their next
// pass requests every overlapping texture into a fresh slot, so textures
// added, removed or invalidated there are not missed.
func (e *Engine) dropPending(r Rect) {
	for i := range e.pending {
		if e.tree.Node(i).rect.Overlaps(r) {
			delete(e.pending, i)
		}
	}
}

func (e *Engine) texture(id int) (*textureEntry, bool) {
	if id < 0 || id >= len(e.textures) || !e.textures[id].live {
		return nil, false
	}
	return &e.textures[id], true
}

// Allocation returns the region allocation of a texture.
func (e *Engine) Allocation(id int) (Allocation, bool) {
	t, ok := e.texture(id)
	if !ok {
		return Allocation{}, false
	}
	return t.alloc, true
}

// TextureRect returns the virtual-space region of a texture. The region is
// rounded up to whole pages.
func (e *Engine) TextureRect(id int) (Rect, bool) {
	t, ok := e.texture(id)
	if !ok {
		return Rect{}, false
	}
	return e.tree.Rect(t.alloc), true
}

// TextureParams returns the UV transform of a texture for shader uniforms.
func (e *Engine) TextureParams(id int) (TextureParams, bool) {
	t, ok := e.texture(id)
	if !ok {
		return TextureParams{}, false
	}
	r := e.tree.Rect(t.alloc)
	vs := float32(e.cfg.VirtualSize)
	return TextureParams{
		ID:     id,
		Offset: mgl32.Vec2{float32(r.X) / vs, float32(r.Y) / vs},
		Scale:  mgl32.Vec2{float32(t.w) / vs, float32(t.h) / vs},
	}, true
}

// PageCachePoint returns the texel origin of a physical slot in the cache
// texture(s).
func (e *Engine) PageCachePoint(slot int) Point {
	return Point{
		X: (slot % e.side) * e.cfg.PageSize,
		Y: (slot / e.side) * e.cfg.PageSize,
	}
}

// CacheSide returns the side of the cache grid in pages.
func (e *Engine) CacheSide() int { return e.side }

// FreeSlots returns the number of unclaimed physical slots.
func (e *Engine) FreeSlots() int { return len(e.freeSlots) }

// ResidentSlots returns the number of slots committed to resident pages.
func (e *Engine) ResidentSlots() int { return e.resident }

// CacheTextures returns the physical cache textures, one per format. It is
// empty for an engine without a device.
func (e *Engine) CacheTextures() []TextureID { return slices.Clone(e.cacheTex) }

// CacheTextureFormats returns the formats of the cache textures.
func (e *Engine) CacheTextureFormats() []gputypes.TextureFormat {
	return slices.Clone(e.cfg.Formats)
}

// RequestPages runs one request pass: dirty nodes are gathered, sorted
// coarsest first and offered to the page source while free slots remain.
//
// A processed node stops being dirty once every overlapping live texture
// accepted its page, or when no live texture overlaps it. A node where some
// textures accepted and others rejected keeps its slot and stays dirty; later
// passes request only the rejected textures, into that slot. Nodes where all
// textures rejected return their slot. Nodes not reached because the slots
// ran out stay dirty for a later pass.
func (e *Engine) RequestPages() PassStats {
	var stats PassStats
	if e.closed {
		return stats
	}
	start := hrtime.Now()

	levels := e.indirection.Levels()
	var dirty []dirtyNode
	e.tree.Walk(func(i int, n *RegionNode, level int) bool {
		if n.dirty && level < levels {
			dirty = append(dirty, dirtyNode{index: i, level: level})
		}
		return true
	})
	stats.DirtyNodes = len(dirty)

	slices.SortStableFunc(dirty, func(a, b dirtyNode) int {
		return b.level - a.level
	})

	for _, d := range dirty {
		if p, ok := e.pending[d.index]; ok {
			stats.Processed++
			e.retryNode(d, p, &stats)
			continue
		}
		if len(e.freeSlots) == 0 {
			stats.Deferred++
			continue
		}
		stats.Processed++
		e.processNode(d, &stats)
	}

	e.passes++
	e.requests += stats.Requests
	e.accepted += stats.Accepted

	stats.Duration = hrtime.Since(start)
	e.log.Debug("vtex: request pass",
		"dirty", stats.DirtyNodes,
		"processed", stats.Processed,
		"requests", stats.Requests,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"deferred", stats.Deferred,
		"freeSlots", len(e.freeSlots),
		"duration", stats.Duration)
	return stats
}

// processNode claims a slot for one dirty node and requests the page of
// every live texture overlapping it. Textures sharing the node share the
// slot; the last accepted write of the indirection entry wins.
func (e *Engine) processNode(d dirtyNode, stats *PassStats) {
	n := e.tree.Node(d.index)

	slot := e.freeSlots[len(e.freeSlots)-1]
	e.freeSlots = e.freeSlots[:len(e.freeSlots)-1]

	used := false
	overlapped := false
	var rejected []int
	for id := range e.textures {
		ok, accepted := e.requestPage(n, d.level, id, slot, stats)
		if !ok {
			continue
		}
		overlapped = true
		if accepted {
			used = true
		} else {
			rejected = append(rejected, id)
		}
	}

	switch {
	case !used:
		e.freeSlots = append(e.freeSlots, slot)
		if !overlapped {
			n.dirty = false
		}
	case len(rejected) > 0:
		e.resident++
		stats.SlotsCommitted++
		e.pending[d.index] = &pendingNode{slot: slot, ids: rejected}
	default:
		e.resident++
		stats.SlotsCommitted++
		n.dirty = false
	}
}

// retryNode requests the pages a pending node's textures rejected earlier,
// into the node's committed slot.
func (e *Engine) retryNode(d dirtyNode, p *pendingNode, stats *PassStats) {
	n := e.tree.Node(d.index)
	var rejected []int
	for _, id := range p.ids {
		ok, accepted := e.requestPage(n, d.level, id, p.slot, stats)
		if ok && !accepted {
			rejected = append(rejected, id)
		}
	}
	if len(rejected) > 0 {
		p.ids = rejected
		return
	}
	delete(e.pending, d.index)
	n.dirty = false
}

// requestPage asks the source for the part of texture id inside node n at
// level, placed at its sub-page offset within slot. overlapped reports
// whether the texture is live and covers part of the node.
func (e *Engine) requestPage(n *RegionNode, level, id, slot int, stats *PassStats) (overlapped, accepted bool) {
	t, ok := e.texture(id)
	if !ok || !t.alloc.Valid() {
		return false, false
	}
	texRect := e.tree.Rect(t.alloc)
	overlap, ok := n.rect.Overlap(texRect)
	if !ok {
		return false, false
	}

	pageSize := e.cfg.PageSize
	base := e.PageCachePoint(slot)
	scaled := overlap.Shift(level)
	dst := Point{
		X: base.X + scaled.X%pageSize,
		Y: base.Y + scaled.Y%pageSize,
	}
	src := overlap.Translate(texRect.Min()).Shift(level)
	if src.Empty() {
		return false, false
	}

	stats.Requests++
	if !e.source.RequestPage(id, level, dst, src) {
		stats.Rejected++
		return true, false
	}
	stats.Accepted++

	pageX := (n.rect.X / pageSize) >> level
	pageY := (n.rect.Y / pageSize) >> level
	e.indirection.Set(level, pageX, pageY,
		uint8(base.X/pageSize), uint8(base.Y/pageSize)) //nolint:gosec // G115: cache side <= 256
	return true, true
}

// Flush uploads the indirection map to the GPU. Call it after the page
// source has queued its uploads so shaders see a consistent mapping.
func (e *Engine) Flush() error {
	if e.closed {
		return ErrEngineClosed
	}
	return e.indirection.Flush()
}

// Stats returns a snapshot of engine state.
func (e *Engine) Stats() Stats {
	return Stats{
		Textures:      len(e.textures) - len(e.freeTextures),
		Allocations:   e.tree.TotalAllocs(),
		FreeSlots:     len(e.freeSlots),
		ResidentSlots: e.resident,
		PendingNodes:  len(e.pending),
		Passes:        e.passes,
		Requests:      e.requests,
		Accepted:      e.accepted,
	}
}

// Close releases the engine's GPU textures. It is safe to call more than
// once.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.dev != nil {
		e.releaseGPUResources()
	}
	e.log.Info("vtex: engine closed", "passes", e.passes, "resident", e.resident)
}
