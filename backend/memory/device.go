// Package memory provides a headless vtex.Device that keeps every texture
// in CPU memory and supports readback.
package memory

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vtex"
	"github.com/gogpu/vtex/backend"
)

// Errors returned by Device.
var (
	// ErrTextureNotFound is returned for unknown or destroyed texture ids.
	ErrTextureNotFound = errors.New("memory: texture not found")

	// ErrInvalidDescriptor is returned when a texture descriptor is invalid.
	ErrInvalidDescriptor = errors.New("memory: invalid texture descriptor")

	// ErrClosed is returned when the device has been closed.
	ErrClosed = errors.New("memory: device closed")
)

func init() {
	backend.Register(backend.BackendMemory, func(backend.Options) (backend.Device, error) {
		return New(), nil
	})
}

// texture is a CPU texture: one tightly packed byte slice per mip level.
type texture struct {
	desc vtex.TextureDescriptor
	bpp  int
	mips [][]byte
}

// Device is a headless vtex.Device.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
type Device struct {
	mu       sync.RWMutex
	textures map[vtex.TextureID]*texture
	closed   bool

	// Start ID generation at 1 (0 is invalid)
	nextID atomic.Uint64

	bytes  atomic.Int64
	writes atomic.Int64
}

// New creates an empty device.
func New() *Device {
	d := &Device{textures: make(map[vtex.TextureID]*texture)}
	d.nextID.Store(1)
	return d
}

// CreateTexture allocates a zeroed texture with every mip level.
func (d *Device) CreateTexture(desc vtex.TextureDescriptor) (vtex.TextureID, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.MipLevelCount < 1 {
		return vtex.InvalidTexture, fmt.Errorf("%w: %dx%d with %d mips",
			ErrInvalidDescriptor, desc.Width, desc.Height, desc.MipLevelCount)
	}
	bpp := vtex.BytesPerPixel(desc.Format)
	if bpp == 0 {
		return vtex.InvalidTexture, fmt.Errorf("%w: unsupported format %v", ErrInvalidDescriptor, desc.Format)
	}

	tex := &texture{desc: desc, bpp: bpp, mips: make([][]byte, desc.MipLevelCount)}
	var total int64
	for level := range tex.mips {
		w, h := desc.MipSize(level)
		tex.mips[level] = make([]byte, w*h*bpp)
		total += int64(w * h * bpp)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return vtex.InvalidTexture, ErrClosed
	}
	id := vtex.TextureID(d.nextID.Add(1) - 1)
	d.textures[id] = tex
	d.bytes.Add(total)

	vtex.Logger().Debug("memory: texture created",
		"id", uint64(id), "label", desc.Label, "width", desc.Width, "height", desc.Height,
		"mips", desc.MipLevelCount, "bytes", total)
	return id, nil
}

// DestroyTexture releases a texture. Unknown ids are ignored.
func (d *Device) DestroyTexture(id vtex.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tex, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.bytes.Add(-tex.size())
	}
}

func (t *texture) size() int64 {
	var n int64
	for _, m := range t.mips {
		n += int64(len(m))
	}
	return n
}

// WriteTexture copies data into the box described by w.
func (d *Device) WriteTexture(w vtex.TextureWrite, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures[w.Texture]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTextureNotFound, w.Texture)
	}
	if err := vtex.CheckWrite(tex.desc, w, data); err != nil {
		return err
	}

	mw, _ := tex.desc.MipSize(w.MipLevel)
	dst := tex.mips[w.MipLevel]
	row := w.Width * tex.bpp
	pitch := w.BytesPerRow
	if pitch == 0 {
		pitch = row
	}
	for y := 0; y < w.Height; y++ {
		off := ((w.Y+y)*mw + w.X) * tex.bpp
		copy(dst[off:off+row], data[y*pitch:y*pitch+row])
	}
	d.writes.Add(1)
	return nil
}

// Descriptor returns the descriptor a texture was created with.
func (d *Device) Descriptor(id vtex.TextureID) (vtex.TextureDescriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tex, ok := d.textures[id]
	if !ok {
		return vtex.TextureDescriptor{}, false
	}
	return tex.desc, true
}

// Bytes returns a copy of a mip level's texels, tightly packed.
func (d *Device) Bytes(id vtex.TextureID, level int) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tex, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTextureNotFound, id)
	}
	if level < 0 || level >= len(tex.mips) {
		return nil, fmt.Errorf("memory: mip level %d out of range [0,%d)", level, len(tex.mips))
	}
	out := make([]byte, len(tex.mips[level]))
	copy(out, tex.mips[level])
	return out, nil
}

// Image returns a mip level as an image: *image.RGBA for 4-byte formats
// (BGRA8 is swizzled to RGBA) and *image.Gray for R8.
func (d *Device) Image(id vtex.TextureID, level int) (image.Image, error) {
	data, err := d.Bytes(id, level)
	if err != nil {
		return nil, err
	}
	desc, _ := d.Descriptor(id)
	w, h := desc.MipSize(level)
	rect := image.Rect(0, 0, w, h)

	switch desc.Format {
	case gputypes.TextureFormatR8Unorm:
		return &image.Gray{Pix: data, Stride: w, Rect: rect}, nil
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		for i := 0; i < len(data); i += 4 {
			data[i], data[i+2] = data[i+2], data[i]
		}
	}
	return &image.RGBA{Pix: data, Stride: w * 4, Rect: rect}, nil
}

// At returns the texel at (x, y) of a mip level as RGBA. Out-of-range
// coordinates return transparent black.
func (d *Device) At(id vtex.TextureID, level, x, y int) (color.RGBA, error) {
	img, err := d.Image(id, level)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}, nil //nolint:gosec // G115: 16-bit to 8-bit
}

// Stats reports live textures, resident bytes and completed writes.
func (d *Device) Stats() (textures int, bytes, writes int64) {
	d.mu.RLock()
	textures = len(d.textures)
	d.mu.RUnlock()
	return textures, d.bytes.Load(), d.writes.Load()
}

// Close releases every texture. Creating textures afterwards fails.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.textures)
	d.bytes.Store(0)
	d.closed = true
	return nil
}

var _ backend.Device = (*Device)(nil)
