package imagesource

import (
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/internal/cache"
)

// DefaultCacheBytes bounds the decoded-file cache when Options.CacheBytes is 0.
const DefaultCacheBytes = 256 << 20

// Options configures a Source.
type Options struct {
	// Format is the physical cache format. RGBA8Unorm (the default) and
	// RGBA8UnormSrgb are supported.
	Format gputypes.TextureFormat

	// CacheBytes bounds the memory of decoded files kept for reuse.
	// Negative disables the bound.
	CacheBytes int64

	// Workers limits parallel decodes in LoadFiles. Defaults to GOMAXPROCS.
	Workers int

	// Linear averages mip levels in linear light.
	Linear bool
}

// Request is a page accepted by RequestPage and not flushed yet.
type Request struct {
	ID    int
	Level int
	Dst   vtex.Point
	Src   vtex.Rect
}

// Source is a vtex.PageSource over decoded images.
type Source struct {
	mu     sync.Mutex
	opts   Options
	chains map[int]*MipChain
	paths  map[int]string
	queue  []Request
	files  *cache.Cache[string, *MipChain]
	log    *slog.Logger
}

var _ vtex.PageSource = (*Source)(nil)

// New creates a Source.
func New(opts Options) (*Source, error) {
	switch opts.Format {
	case gputypes.TextureFormatUndefined:
		opts.Format = gputypes.TextureFormatRGBA8Unorm
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "format %v", opts.Format)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	budget := opts.CacheBytes
	switch {
	case budget == 0:
		budget = DefaultCacheBytes
	case budget < 0:
		budget = 0
	}

	return &Source{
		opts:   opts,
		chains: make(map[int]*MipChain),
		paths:  make(map[int]string),
		files:  cache.New[string, *MipChain](budget, (*MipChain).Bytes),
		log:    vtex.Logger().With("component", "imagesource"),
	}, nil
}

// CacheStats reports the decoded-file cache used by LoadFile.
type CacheStats = cache.Stats

// CacheStats returns a snapshot of the decoded-file cache.
func (s *Source) CacheStats() CacheStats { return s.files.Stats() }

// Format returns the cache format the source writes.
func (s *Source) Format() gputypes.TextureFormat { return s.opts.Format }

// Add builds a mip chain for img and binds it to engine texture id.
func (s *Source) Add(id int, img image.Image) (*MipChain, error) {
	chain, err := NewMipChain(img, s.opts.Linear)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %d", id)
	}
	s.mu.Lock()
	s.chains[id] = chain
	delete(s.paths, id)
	s.mu.Unlock()
	return chain, nil
}

// Bind ties engine texture id to a chain loaded from path. Watch reloads the
// chain when path changes.
func (s *Source) Bind(id int, path string, chain *MipChain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[id] = chain
	s.paths[id] = filepath.Clean(path)
}

// Remove unbinds texture id and drops its queued requests.
func (s *Source) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chains, id)
	delete(s.paths, id)
	s.queue = slices.DeleteFunc(s.queue, func(r Request) bool { return r.ID == id })
}

// Chain returns the chain bound to texture id.
func (s *Source) Chain(id int) (*MipChain, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[id]
	return c, ok
}

// RequestPage queues the page if texture id is bound and has the level.
func (s *Source) RequestPage(id, level int, dst vtex.Point, src vtex.Rect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[id]
	if !ok || level < 0 || level >= chain.Levels() {
		s.log.Debug("imagesource: page rejected", "texture", id, "level", level)
		return false
	}
	s.queue = append(s.queue, Request{ID: id, Level: level, Dst: dst, Src: src})
	return true
}

// Pending returns the number of queued requests.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Requests returns a copy of the queued requests.
func (s *Source) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queue)
}

// Flush writes every queued request into cacheTex and clears the queue.
// Source rectangles are clamped to their level; requests that end up empty,
// or whose texture was removed, are dropped. It returns the number of writes.
// On a device error the remaining requests stay queued.
func (s *Source) Flush(dev vtex.Device, cacheTex vtex.TextureID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for i, r := range s.queue {
		chain, ok := s.chains[r.ID]
		if !ok {
			continue
		}
		lvl := chain.Level(r.Level)
		if lvl == nil {
			continue
		}
		src := image.Rect(r.Src.X, r.Src.Y, r.Src.X+r.Src.W, r.Src.Y+r.Src.H).Intersect(lvl.Bounds())
		if src.Empty() {
			continue
		}

		w := vtex.TextureWrite{
			Texture:     cacheTex,
			X:           r.Dst.X,
			Y:           r.Dst.Y,
			Width:       src.Dx(),
			Height:      src.Dy(),
			BytesPerRow: lvl.Stride,
		}
		if err := dev.WriteTexture(w, lvl.Pix[lvl.PixOffset(src.Min.X, src.Min.Y):]); err != nil {
			s.queue = s.queue[i:]
			s.log.Warn("imagesource: page upload failed", "texture", r.ID, "level", r.Level, "err", err)
			return written, errors.Wrapf(err, "upload texture %d level %d to %v", r.ID, r.Level, r.Dst)
		}
		written++
	}
	s.queue = s.queue[:0]
	return written, nil
}
